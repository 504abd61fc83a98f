package ideator

import (
	"math"
	"sort"
)

var feasibilityPoints = map[Level]float64{
	LevelLow:    30,
	LevelMedium: 20,
	LevelHigh:   10,
}

// RankScore weighs revenue (max 40), feasibility (max 30) and market fit
// (max 30).
func RankScore(idea BusinessIdea) float64 {
	revenue := math.Min(math.Max(idea.EstimatedRevenue, 0)/1e9, 1) * 40
	fit := math.Min(float64(len(idea.TargetCustomers)*5+len(idea.CustomerPains)*5), 30)
	return revenue + feasibilityPoints[idea.ImplementationDifficulty] + fit
}

// Rank returns a copy of ideas sorted by RankScore, highest first. Ties keep
// their input order.
func Rank(ideas []BusinessIdea) []BusinessIdea {
	type scored struct {
		idea  BusinessIdea
		score float64
	}
	tmp := make([]scored, len(ideas))
	for i, idea := range ideas {
		tmp[i] = scored{idea: idea, score: RankScore(idea)}
	}
	sort.SliceStable(tmp, func(i, j int) bool { return tmp[i].score > tmp[j].score })
	out := make([]BusinessIdea, len(tmp))
	for i := range tmp {
		out[i] = tmp[i].idea
	}
	return out
}
