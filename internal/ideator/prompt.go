package ideator

import (
	"encoding/json"
	"fmt"
	"strings"
)

const ideaShapePrompt = `Each idea must be a JSON object with this shape:
{
  "id":"string (may be empty)",
  "title":"string, 1-%d characters",
  "description":"string, %d-%d characters",
  "targetCustomers":["string"] (at least one, be specific),
  "customerPains":["string"] (at least one, tied to the pains above),
  "valueProposition":"string, at least 10 characters",
  "revenueModel":"string, at least 10 characters, how money is made",
  "estimatedRevenue":"number >= 0, expected annual revenue",
  "implementationDifficulty":"low|medium|high",
  "marketOpportunity":"string, at least 10 characters, which opportunity this addresses"
}`

const batchOutputPrompt = `Required JSON output:
{"ideas":[<exactly %d idea objects>],"summary":"string"}
Return exactly %d ideas. Do not return more or fewer.`

const singleOutputPrompt = `Required JSON output:
{"idea":<one idea object>}`

const ideationGuidance = `Ground every idea in the research below. Prefer ideas that address a
high-severity or frequent pain, name a concrete paying customer, and have a
revenue model that is plausible for the market size. Avoid generic targets
such as "everyone" or "all businesses".`

// ComposeBatchPrompt renders the request for a full batch of ideas.
func ComposeBatchPrompt(mc MarketContext, cfg IdeationConfig) string {
	return fmt.Sprintf(
		"Business ideation.\nGenerate %d distinct business ideas from the market research below.\n%s\n\n%s\n\n%s\n\n%s",
		cfg.RequiredCount,
		ideationGuidance,
		renderContext(mc),
		fmt.Sprintf(ideaShapePrompt, cfg.MaxTitleLength, cfg.MinDescriptionLength, cfg.MaxDescriptionLength),
		fmt.Sprintf(batchOutputPrompt, cfg.RequiredCount, cfg.RequiredCount),
	)
}

// ComposeSingleIdeaPrompt asks for one more idea. existing titles are listed
// so the model avoids duplicates; focus is an optional steering hint.
func ComposeSingleIdeaPrompt(mc MarketContext, cfg IdeationConfig, existing []string, focus string) string {
	var b strings.Builder
	b.WriteString("Business ideation: additional idea.\nGenerate one new business idea from the market research below.\n")
	b.WriteString(ideationGuidance)
	if focus = strings.TrimSpace(focus); focus != "" {
		fmt.Fprintf(&b, "\nFocus on: %s", focus)
	}
	if len(existing) > 0 {
		fmt.Fprintf(&b, "\nIt must differ from these existing ideas: %s", strings.Join(existing, "; "))
	}
	b.WriteString("\n\n")
	b.WriteString(renderContext(mc))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, ideaShapePrompt, cfg.MaxTitleLength, cfg.MinDescriptionLength, cfg.MaxDescriptionLength)
	b.WriteString("\n\n")
	b.WriteString(singleOutputPrompt)
	return b.String()
}

// ComposeRefinementPrompt asks the model to repair one idea.
func ComposeRefinementPrompt(idea BusinessIdea, suggestions []string, mc MarketContext, cfg IdeationConfig) string {
	return fmt.Sprintf(
		"Business ideation: refinement.\nImprove the business idea below so it addresses every point in the feedback. Keep its core concept and id.\n\nFeedback:\n%s\n\nCurrent idea:\n%s\n\n%s\n\n%s\n\n%s",
		bulletList(suggestions, "Improve overall specificity."),
		mustJSON(idea),
		renderContext(mc),
		fmt.Sprintf(ideaShapePrompt, cfg.MaxTitleLength, cfg.MinDescriptionLength, cfg.MaxDescriptionLength),
		singleOutputPrompt,
	)
}

func renderContext(mc MarketContext) string {
	var b strings.Builder
	b.WriteString("Research summary:\n")
	if s := strings.TrimSpace(mc.ResearchSummary); s != "" {
		b.WriteString(s)
	} else {
		b.WriteString("(none)")
	}

	b.WriteString("\n\nMarket opportunities:\n")
	if len(mc.Opportunities) == 0 {
		b.WriteString("- (none identified)\n")
	}
	for _, o := range mc.Opportunities {
		fmt.Fprintf(&b, "- %s (market size: %s, growth: %s)\n  unmet needs: %s\n",
			o.Description, FormatCurrency(o.MarketSize), formatPercent(o.GrowthRate), strings.Join(o.UnmetNeeds, "; "))
		if len(o.CompetitiveGaps) > 0 {
			fmt.Fprintf(&b, "  competitive gaps: %s\n", strings.Join(o.CompetitiveGaps, "; "))
		}
	}

	b.WriteString("\nCustomer pains:\n")
	if len(mc.Pains) == 0 {
		b.WriteString("- (none identified)\n")
	}
	for _, p := range mc.Pains {
		fmt.Fprintf(&b, "- %s (severity: %s, frequency: %s)\n  limitations of current solutions: %s\n",
			p.Description, p.Severity, p.Frequency, strings.Join(p.Limitations, "; "))
	}

	b.WriteString("\nMarket trends:\n")
	b.WriteString(bulletList(mc.Trends, "(none identified)"))

	b.WriteString("\n\nCompetitive landscape:\n")
	b.WriteString(mc.CompetitiveLandscape)
	return b.String()
}

func bulletList(items []string, empty string) string {
	if len(items) == 0 {
		return "- " + empty
	}
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	return strings.Join(lines, "\n")
}

func mustJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
