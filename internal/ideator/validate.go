package ideator

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	revenueHighWarning  = 100_000_000_000.0
	revenueSmallInfo    = 10_000_000.0
	revenueMoatInfo     = 10_000_000_000.0
	plausibleRevenueMin = 100_000_000.0
	plausibleRevenueMax = 10_000_000_000.0
)

// Rule inspects one idea and reports at most one issue.
type Rule struct {
	Name  string
	Check func(BusinessIdea) *ValidationIssue
}

var genericCustomers = []string{"everyone", "anyone", "all people", "all businesses", "general public", "all companies", "全員", "誰でも", "一般"}

// DefaultRules returns the nine content rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "title_length", Check: checkTitle},
		{Name: "description_length", Check: checkDescription},
		{Name: "target_customers", Check: checkTargetCustomers},
		{Name: "revenue_realism", Check: checkRevenue},
		{Name: "value_proposition", Check: checkValueProposition},
		{Name: "revenue_model", Check: checkRevenueModel},
		{Name: "customer_pains", Check: checkCustomerPains},
		{Name: "implementation_difficulty", Check: checkDifficulty},
		{Name: "market_opportunity", Check: checkMarketOpportunity},
	}
}

func issue(field string, sev Severity, format string, args ...any) *ValidationIssue {
	return &ValidationIssue{Field: field, Severity: sev, Message: fmt.Sprintf(format, args...)}
}

func runeLen(s string) int { return utf8.RuneCountInString(strings.TrimSpace(s)) }

func checkTitle(idea BusinessIdea) *ValidationIssue {
	if runeLen(idea.Title) < 5 {
		return issue("title", SeverityWarning, "title is too short to describe the idea")
	}
	return nil
}

func checkDescription(idea BusinessIdea) *ValidationIssue {
	n := runeLen(idea.Description)
	switch {
	case n < 50:
		return issue("description", SeverityWarning, "description is too brief (%d characters)", n)
	case n > 400:
		return issue("description", SeverityInfo, "description is long (%d characters); consider tightening it", n)
	}
	return nil
}

func checkTargetCustomers(idea BusinessIdea) *ValidationIssue {
	for _, c := range idea.TargetCustomers {
		lc := strings.ToLower(strings.TrimSpace(c))
		for _, g := range genericCustomers {
			if lc == g || strings.HasPrefix(lc, g+" ") {
				return issue("targetCustomers", SeverityWarning, "target customer %q is too generic", c)
			}
		}
	}
	return nil
}

func checkRevenue(idea BusinessIdea) *ValidationIssue {
	r := idea.EstimatedRevenue
	switch {
	case r == 0:
		return issue("estimatedRevenue", SeverityError, "estimated revenue is zero")
	case r > revenueHighWarning:
		return issue("estimatedRevenue", SeverityWarning, "estimated revenue %s is unusually high", FormatCurrency(r))
	case r < revenueSmallInfo:
		return issue("estimatedRevenue", SeverityInfo, "estimated revenue %s may be too small to sustain a business", FormatCurrency(r))
	}
	return nil
}

func checkValueProposition(idea BusinessIdea) *ValidationIssue {
	if runeLen(idea.ValueProposition) < 20 {
		return issue("valueProposition", SeverityError, "value proposition is missing or too vague")
	}
	return nil
}

func checkRevenueModel(idea BusinessIdea) *ValidationIssue {
	if runeLen(idea.RevenueModel) < 20 {
		return issue("revenueModel", SeverityWarning, "revenue model lacks detail")
	}
	return nil
}

func checkCustomerPains(idea BusinessIdea) *ValidationIssue {
	switch n := len(idea.CustomerPains); {
	case n == 0:
		return issue("customerPains", SeverityWarning, "no customer pains are addressed")
	case n > 10:
		return issue("customerPains", SeverityInfo, "%d customer pains listed; focus on the most important", n)
	}
	return nil
}

func checkDifficulty(idea BusinessIdea) *ValidationIssue {
	if !validLevel(idea.ImplementationDifficulty) {
		return issue("implementationDifficulty", SeverityError, "implementation difficulty %q must be low, medium or high", idea.ImplementationDifficulty)
	}
	if idea.EstimatedRevenue >= revenueMoatInfo && idea.ImplementationDifficulty == LevelLow {
		return issue("implementationDifficulty", SeverityInfo, "high revenue with low difficulty: re-examine the competitive moat")
	}
	return nil
}

func checkMarketOpportunity(idea BusinessIdea) *ValidationIssue {
	if runeLen(idea.MarketOpportunity) < 30 {
		return issue("marketOpportunity", SeverityWarning, "market opportunity is not clearly linked to the research")
	}
	return nil
}

func validLevel(l Level) bool {
	return l == LevelLow || l == LevelMedium || l == LevelHigh
}

// Validator scores ideas against the configured bounds and rule list.
type Validator struct {
	cfg   IdeationConfig
	rules []Rule
}

func NewValidator(cfg IdeationConfig, rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Validator{cfg: cfg, rules: rules}
}

// SchemaIssues checks field presence and bounds. Every violation is an error.
func (v *Validator) SchemaIssues(idea BusinessIdea) []ValidationIssue {
	var out []ValidationIssue
	add := func(field, format string, args ...any) {
		out = append(out, *issue(field, SeverityError, format, args...))
	}
	if n := runeLen(idea.Title); n < 1 || n > v.cfg.MaxTitleLength {
		add("title", "title must be 1-%d characters (got %d)", v.cfg.MaxTitleLength, n)
	}
	if n := runeLen(idea.Description); n < v.cfg.MinDescriptionLength || n > v.cfg.MaxDescriptionLength {
		add("description", "description must be %d-%d characters (got %d)", v.cfg.MinDescriptionLength, v.cfg.MaxDescriptionLength, n)
	}
	if len(nonEmpty(idea.TargetCustomers)) == 0 {
		add("targetCustomers", "at least one target customer is required")
	}
	if len(nonEmpty(idea.CustomerPains)) == 0 {
		add("customerPains", "at least one customer pain is required")
	}
	if runeLen(idea.ValueProposition) < 10 {
		add("valueProposition", "value proposition must be at least 10 characters")
	}
	if runeLen(idea.RevenueModel) < 10 {
		add("revenueModel", "revenue model must be at least 10 characters")
	}
	if idea.EstimatedRevenue < 0 || math.IsNaN(idea.EstimatedRevenue) || math.IsInf(idea.EstimatedRevenue, 0) {
		add("estimatedRevenue", "estimated revenue must be a non-negative number")
	}
	if !validLevel(idea.ImplementationDifficulty) {
		add("implementationDifficulty", "implementation difficulty must be low, medium or high")
	}
	if runeLen(idea.MarketOpportunity) < 10 {
		add("marketOpportunity", "market opportunity must be at least 10 characters")
	}
	return out
}

// ValidateIdea runs the schema check and, if it passes, every rule.
func (v *Validator) ValidateIdea(idea BusinessIdea) ValidationResult {
	issues := v.SchemaIssues(idea)
	if len(issues) == 0 {
		for _, r := range v.rules {
			if is := r.Check(idea); is != nil {
				issues = append(issues, *is)
			}
		}
	}
	valid := true
	for _, is := range issues {
		if is.Severity == SeverityError {
			valid = false
			break
		}
	}
	if issues == nil {
		issues = []ValidationIssue{}
	}
	return ValidationResult{
		IdeaID:       idea.ID,
		IsValid:      valid,
		Issues:       issues,
		QualityScore: Score(idea, issues),
	}
}

// Score is 100 minus issue penalties plus completeness and realism bonuses,
// clamped to [0, 100].
func Score(idea BusinessIdea, issues []ValidationIssue) int {
	s := 100
	for _, is := range issues {
		switch is.Severity {
		case SeverityError:
			s -= 20
		case SeverityWarning:
			s -= 10
		case SeverityInfo:
			s -= 5
		}
	}
	if runeLen(idea.Description) > 100 {
		s += 5
	}
	if len(idea.TargetCustomers) >= 2 {
		s += 5
	}
	if len(idea.CustomerPains) >= 2 {
		s += 5
	}
	if runeLen(idea.RevenueModel) > 20 {
		s += 5
	}
	if idea.EstimatedRevenue >= plausibleRevenueMin && idea.EstimatedRevenue <= plausibleRevenueMax {
		s += 10
	}
	return max(0, min(100, s))
}

// ValidateBatch validates each idea and the batch size.
func (v *Validator) ValidateBatch(ideas []BusinessIdea) BatchValidation {
	out := BatchValidation{IsValid: true, Results: make([]ValidationResult, 0, len(ideas))}
	total := 0
	for _, idea := range ideas {
		r := v.ValidateIdea(idea)
		out.Results = append(out.Results, r)
		total += r.QualityScore
		if !r.IsValid {
			out.IsValid = false
		}
	}
	if len(ideas) > 0 {
		out.OverallScore = float64(total) / float64(len(ideas))
	}
	if len(ideas) != v.cfg.RequiredCount {
		out.IsValid = false
		out.Issues = append(out.Issues, ValidationIssue{
			Field:    "ideas",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s: expected %d ideas, got %d", CodeIdeaCountMismatch, v.cfg.RequiredCount, len(ideas)),
		})
	}
	return out
}

var fieldSuggestions = map[string]string{
	"title":                    "Use a concise, descriptive title within the length limit.",
	"description":              "Describe what the product does, for whom, and how it is delivered in 50-400 characters.",
	"targetCustomers":          "Name specific customer segments (industry, size, role) instead of broad groups.",
	"estimatedRevenue":         "Estimate annual revenue from a stated customer count and price point.",
	"valueProposition":         "State the concrete benefit customers get and why it beats current solutions.",
	"revenueModel":             "Explain pricing, who pays, and how often (subscription, usage fee, commission).",
	"customerPains":            "List the two or three most important customer pains from the research.",
	"implementationDifficulty": "Rate difficulty as low, medium or high and justify it against the competitive moat.",
	"marketOpportunity":        "Tie the idea to a specific market opportunity from the research.",
	"ideas":                    "Return exactly the requested number of ideas.",
}

// Suggestions turns a validation result into refinement feedback.
func (v *Validator) Suggestions(r ValidationResult) []string { return suggestionsFor(r) }

func suggestionsFor(r ValidationResult) []string {
	var out []string
	seen := map[string]bool{}
	push := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, is := range r.Issues {
		if s, ok := fieldSuggestions[is.Field]; ok {
			push(s)
			continue
		}
		push(fmt.Sprintf("%s: %s", is.Field, is.Message))
	}
	switch {
	case r.QualityScore < 60:
		push("Increase specificity across the idea: concrete customers, quantified pains and revenue.")
	case r.QualityScore < 80:
		push("Add detail to the revenue model and the market opportunity.")
	}
	return out
}

// ComputeQualityMetrics derives the 0-100 batch quality metrics.
func (v *Validator) ComputeQualityMetrics(ideas []BusinessIdea, results []ValidationResult) QualityMetrics {
	if len(ideas) == 0 {
		return QualityMetrics{}
	}
	structured, clear := 0, 0
	for _, idea := range ideas {
		if len(v.SchemaIssues(idea)) == 0 {
			structured++
		}
		if runeLen(idea.MarketOpportunity) >= 30 && len(idea.CustomerPains) > 0 && idea.EstimatedRevenue > 0 {
			clear++
		}
	}
	consistency := 0.0
	if len(results) > 0 {
		sum := 0
		for _, r := range results {
			sum += r.QualityScore
		}
		consistency = float64(sum) / float64(len(results))
	}
	n := float64(len(ideas))
	return QualityMetrics{
		StructureCompleteness: round1(float64(structured) / n * 100),
		ContentConsistency:    round1(consistency),
		MarketClarity:         round1(float64(clear) / n * 100),
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
