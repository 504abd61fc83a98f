package ideator

import (
	"fmt"
	"strings"
	"time"
)

const genericMarketOpportunity = "General market opportunity identified in the research"

type EnrichInput struct {
	SessionID      string
	ResearchDataID string
	Model          string
	TokensUsed     int
	StartedAt      time.Time
	Now            time.Time
	TargetRevenue  float64
}

// Enrich normalizes a raw model batch into an IdeatorOutput. It fills gaps
// and derives aggregates but never drops or rejects an idea.
func Enrich(raw RawBatch, mc MarketContext, in EnrichInput) IdeatorOutput {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	ideas := make([]BusinessIdea, len(raw.Ideas))
	for i, idea := range raw.Ideas {
		ideas[i] = normalizeIdea(idea, mc)
	}
	assignUniqueIDs(ideas, now)

	out := IdeatorOutput{
		SessionID: in.SessionID,
		Ideas:     ideas,
		Summary:   strings.TrimSpace(raw.Summary),
		Metadata: OutputMetadata{
			GeneratedAt:    now,
			ModelUsed:      in.Model,
			TokensUsed:     in.TokensUsed,
			ResearchDataID: in.ResearchDataID,
			AverageRevenue: averageRevenue(ideas),
			MarketSize:     totalMarketSize(mc),
		},
	}
	if !in.StartedAt.IsZero() {
		out.Metadata.ProcessingTimeMs = now.Sub(in.StartedAt).Milliseconds()
	}
	if out.Summary == "" {
		out.Summary = summarize(ideas, in.TargetRevenue)
	}
	return out
}

func normalizeIdea(idea BusinessIdea, mc MarketContext) BusinessIdea {
	idea.ID = strings.TrimSpace(idea.ID)
	if strings.TrimSpace(idea.MarketOpportunity) == "" {
		idea.MarketOpportunity = genericMarketOpportunity
		if len(mc.Opportunities) > 0 {
			idea.MarketOpportunity = mc.Opportunities[0].Description
		}
	}
	idea.ImplementationDifficulty = Level(strings.ToLower(strings.TrimSpace(string(idea.ImplementationDifficulty))))
	if idea.TargetCustomers == nil {
		idea.TargetCustomers = []string{}
	}
	if idea.CustomerPains == nil {
		idea.CustomerPains = []string{}
	}
	return idea
}

// assignUniqueIDs fills missing ids and replaces any id already used by an
// earlier idea in the batch.
func assignUniqueIDs(ideas []BusinessIdea, now time.Time) {
	used := make(map[string]bool, len(ideas))
	for i := range ideas {
		if ideas[i].ID == "" || used[ideas[i].ID] {
			ideas[i].ID = syntheticID(now, i+1, used)
		}
		used[ideas[i].ID] = true
	}
}

func syntheticID(now time.Time, seq int, used map[string]bool) string {
	for {
		id := fmt.Sprintf("idea-%d-%d", now.UnixMilli(), seq)
		if !used[id] {
			return id
		}
		seq++
	}
}

func idSet(ideas ...[]BusinessIdea) map[string]bool {
	used := make(map[string]bool)
	for _, batch := range ideas {
		for _, idea := range batch {
			used[idea.ID] = true
		}
	}
	return used
}

func averageRevenue(ideas []BusinessIdea) float64 {
	if len(ideas) == 0 {
		return 0
	}
	sum := 0.0
	for _, idea := range ideas {
		sum += idea.EstimatedRevenue
	}
	return sum / float64(len(ideas))
}

func totalMarketSize(mc MarketContext) float64 {
	sum := 0.0
	for _, o := range mc.Opportunities {
		sum += o.MarketSize
	}
	return sum
}

func summarize(ideas []BusinessIdea, target float64) string {
	above, easy := 0, 0
	for _, idea := range ideas {
		if idea.EstimatedRevenue >= target {
			above++
		}
		if idea.ImplementationDifficulty == LevelLow {
			easy++
		}
	}
	return fmt.Sprintf("Generated %d business ideas: %d with estimated revenue of at least %s, %d rated low implementation difficulty.",
		len(ideas), above, FormatCurrency(target), easy)
}
