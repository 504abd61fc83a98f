package ideator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultGrowthRate        = 10.0
	DefaultFactMarketSize    = 1_000_000_000.0
	InsufficientLandscapeMsg = "Insufficient information on the competitive landscape."
	maxFactOpportunities     = 1
)

// Latin units must end on a word boundary so "5 Bays" is not five billion.
var magnitudeRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(?:(trillion|billion|million|bn|mn|[tbm])\b|(兆|億|万))`)

var magnitudeUnits = map[string]float64{
	"trillion": 1e12,
	"billion":  1e9,
	"million":  1e6,
	"t":        1e12,
	"bn":       1e9,
	"b":        1e9,
	"mn":       1e6,
	"m":        1e6,
	"兆":        1e12,
	"億":        1e8,
	"万":        1e4,
}

// ExtractMarketContext derives the prompt context from research output. It is
// pure: the same input and tables always give the same context.
func ExtractMarketContext(r ResearchOutput, kw KeywordTables) MarketContext {
	return MarketContext{
		Opportunities:        extractOpportunities(r, kw),
		Pains:                extractPains(r, kw),
		Trends:               extractTrends(r, kw),
		CompetitiveLandscape: extractLandscape(r, kw),
		ResearchSummary:      researchSummary(r),
	}
}

func extractOpportunities(r ResearchOutput, kw KeywordTables) []MarketOpportunity {
	growth := DefaultGrowthRate
	if r.Metrics.GrowthRate != nil {
		growth = *r.Metrics.GrowthRate
	}

	src := nonEmpty(r.DetailedAnalysis.Opportunities)
	if len(src) == 0 {
		return opportunitiesFromFacts(r, kw, growth)
	}

	share := 0.0
	if r.Metrics.MarketSize > 0 {
		share = r.Metrics.MarketSize / float64(len(src))
	}
	challenges := strings.Join(r.DetailedAnalysis.Challenges, " ")
	out := make([]MarketOpportunity, 0, len(src))
	for i, desc := range src {
		needs, gaps := matchNeeds(desc+" "+challenges, kw)
		out = append(out, MarketOpportunity{
			ID:              fmt.Sprintf("opp-%d", i+1),
			Description:     desc,
			MarketSize:      share,
			GrowthRate:      growth,
			UnmetNeeds:      needs,
			CompetitiveGaps: gaps,
		})
	}
	return out
}

func opportunitiesFromFacts(r ResearchOutput, kw KeywordTables, growth float64) []MarketOpportunity {
	var out []MarketOpportunity
	for _, fact := range r.Facts {
		if len(out) >= maxFactOpportunities {
			break
		}
		if !matchesAny(fact, kw.Growth) {
			continue
		}
		size, ok := ParseMagnitude(fact)
		if !ok {
			size = DefaultFactMarketSize
		}
		needs, gaps := matchNeeds(fact, kw)
		out = append(out, MarketOpportunity{
			ID:              fmt.Sprintf("opp-%d", len(out)+1),
			Description:     strings.TrimSpace(fact),
			MarketSize:      size,
			GrowthRate:      growth,
			UnmetNeeds:      needs,
			CompetitiveGaps: gaps,
		})
	}
	return out
}

// ParseMagnitude reads the first "<number> <large unit>" token in s.
func ParseMagnitude(s string) (float64, bool) {
	m := magnitudeRe.FindStringSubmatch(s)
	if len(m) != 4 {
		return 0, false
	}
	num := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	unit, ok := magnitudeUnits[strings.ToLower(m[2]+m[3])]
	if !ok {
		return 0, false
	}
	return v * unit, true
}

func matchNeeds(text string, kw KeywordTables) (needs, gaps []string) {
	for _, rule := range kw.Needs {
		if matchesAny(text, rule.Keywords) {
			needs = append(needs, rule.Need)
			if rule.Gap != "" {
				gaps = append(gaps, rule.Gap)
			}
		}
	}
	if len(needs) == 0 {
		needs = []string{kw.FallbackNeed}
	}
	if gaps == nil {
		gaps = []string{}
	}
	return needs, gaps
}

func extractPains(r ResearchOutput, kw KeywordTables) []CustomerPain {
	var out []CustomerPain
	seen := map[string]bool{}
	add := func(text string) {
		text = strings.TrimSpace(text)
		key := strings.ToLower(text)
		if text == "" || seen[key] {
			return
		}
		seen[key] = true
		solutions, limits := matchSolutions(text, kw)
		out = append(out, CustomerPain{
			ID:               fmt.Sprintf("pain-%d", len(out)+1),
			Description:      text,
			Severity:         firstLevel(text, kw.Severity, LevelMedium),
			Frequency:        firstLevel(text, kw.Frequency, FrequencyOccasional),
			CurrentSolutions: solutions,
			Limitations:      limits,
		})
	}
	for _, c := range r.DetailedAnalysis.Challenges {
		add(c)
	}
	for _, f := range r.Facts {
		if matchesAny(f, kw.Challenge) {
			add(f)
		}
	}
	return out
}

func matchSolutions(text string, kw KeywordTables) (solutions, limits []string) {
	for _, rule := range kw.Solutions {
		if matchesAny(text, rule.Keywords) {
			solutions = append(solutions, rule.Need)
			limits = append(limits, rule.Gap)
		}
	}
	if len(solutions) == 0 {
		return []string{"Generic existing tools"}, []string{"Does not fully address the problem"}
	}
	return solutions, limits
}

func firstLevel[T ~string](text string, rules []LevelRule[T], def T) T {
	for _, rule := range rules {
		if matchesAny(text, rule.Keywords) {
			return rule.Value
		}
	}
	return def
}

func extractTrends(r ResearchOutput, kw KeywordTables) []string {
	if trends := nonEmpty(r.DetailedAnalysis.MarketTrends); len(trends) > 0 {
		return trends
	}
	out := []string{}
	seen := map[string]bool{}
	for _, f := range r.Facts {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] || !matchesAny(f, kw.Growth) {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func extractLandscape(r ResearchOutput, kw KeywordTables) string {
	if s := strings.TrimSpace(r.DetailedAnalysis.CompetitiveLandscape); s != "" {
		return s
	}
	var names []string
	for _, e := range r.Entities {
		if strings.EqualFold(strings.TrimSpace(e.Type), "competitor") || matchesAny(e.Type, kw.Competitor) {
			if n := strings.TrimSpace(e.Name); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return InsufficientLandscapeMsg
	}
	return fmt.Sprintf("Key competitors identified: %s.", strings.Join(names, ", "))
}

func researchSummary(r ResearchOutput) string {
	if s := strings.TrimSpace(r.ProcessedResearch.Summary); s != "" {
		return s
	}
	facts := nonEmpty(r.Facts)
	if len(facts) > 3 {
		facts = facts[:3]
	}
	return strings.Join(facts, " ")
}

// HasSufficientInput reports whether r carries anything to ideate from.
func HasSufficientInput(r ResearchOutput) bool {
	return len(nonEmpty(r.Facts)) > 0 ||
		len(nonEmpty(r.DetailedAnalysis.Opportunities)) > 0 ||
		len(nonEmpty(r.DetailedAnalysis.Challenges)) > 0 ||
		len(nonEmpty(r.DetailedAnalysis.MarketTrends)) > 0 ||
		strings.TrimSpace(r.ProcessedResearch.Summary) != ""
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func matchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if containsKeyword(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func containsKeyword(text, kw string) bool {
	if kw == "" {
		return false
	}
	if !isASCII(kw) {
		return strings.Contains(text, kw)
	}
	needEnd := len(kw) < 4
	for from := 0; from <= len(text)-len(kw); {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(kw)
		if isWordStart(text, i) && (!needEnd || isWordEnd(text, end)) {
			return true
		}
		from = i + 1
	}
	return false
}

func isWordStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isWordEnd(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
