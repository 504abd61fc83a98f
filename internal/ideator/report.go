package ideator

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const reportDisclaimer = "Ideas are generated from automated market research and have not been validated with customers. Treat revenue estimates as directional."

type ResponseEnvelope struct {
	SessionID      string          `json:"session_id"`
	ResearchDataID string          `json:"research_data_id"`
	Output         IdeatorOutput   `json:"output"`
	Validation     BatchValidation `json:"validation"`
	Stats          RunStats        `json:"stats"`
	ReportMarkdown string          `json:"report_markdown"`
	ReportHTML     string          `json:"report_html,omitempty"`
	Disclaimer     string          `json:"disclaimer"`
}

func BuildResponse(result Result) ResponseEnvelope {
	env := ResponseEnvelope{
		SessionID:      result.Output.SessionID,
		ResearchDataID: result.Output.Metadata.ResearchDataID,
		Output:         result.Output,
		Validation:     result.Validation,
		Stats:          result.Stats,
		Disclaimer:     reportDisclaimer,
	}
	env.ReportMarkdown = buildMarkdown(result)
	return env
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderReportHTML converts report markdown to an HTML fragment.
func RenderReportHTML(md string) (string, error) {
	var b strings.Builder
	if err := markdown.Convert([]byte(md), &b); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return b.String(), nil
}

func buildMarkdown(result Result) string {
	out := result.Output
	var b strings.Builder
	fmt.Fprintf(&b, "# Business Ideas Report\n\n")
	fmt.Fprintf(&b, "- Session: %s\n", out.SessionID)
	if out.Metadata.ResearchDataID != "" {
		fmt.Fprintf(&b, "- Research: %s\n", out.Metadata.ResearchDataID)
	}
	fmt.Fprintf(&b, "- Generated: %s\n", out.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if out.Metadata.ModelUsed != "" {
		fmt.Fprintf(&b, "- Model: %s\n", out.Metadata.ModelUsed)
	}
	fmt.Fprintf(&b, "- Overall quality score: %.1f\n\n", result.Validation.OverallScore)
	fmt.Fprintf(&b, "%s\n\n", reportDisclaimer)

	fmt.Fprintf(&b, "## Summary\n\n%s\n\n", sanitize(out.Summary))

	fmt.Fprintf(&b, "## Ranking\n\n")
	fmt.Fprintf(&b, "| # | Idea | Rank score | Est. revenue | Difficulty | Quality |\n")
	fmt.Fprintf(&b, "|---|---|---|---|---|---|\n")
	quality := map[string]ValidationResult{}
	for _, r := range result.Validation.Results {
		quality[r.IdeaID] = r
	}
	for i, idea := range out.Ideas {
		fmt.Fprintf(&b, "| %d | %s | %.1f | %s | %s | %d |\n",
			i+1, sanitize(idea.Title), RankScore(idea), FormatCurrency(idea.EstimatedRevenue), idea.ImplementationDifficulty, quality[idea.ID].QualityScore)
	}
	b.WriteString("\n")

	for i, idea := range out.Ideas {
		fmt.Fprintf(&b, "## %d. %s\n\n", i+1, sanitize(idea.Title))
		fmt.Fprintf(&b, "%s\n\n", sanitize(idea.Description))
		fmt.Fprintf(&b, "- **Target customers**: %s\n", sanitize(strings.Join(idea.TargetCustomers, ", ")))
		fmt.Fprintf(&b, "- **Customer pains**: %s\n", sanitize(strings.Join(idea.CustomerPains, "; ")))
		fmt.Fprintf(&b, "- **Value proposition**: %s\n", sanitize(idea.ValueProposition))
		fmt.Fprintf(&b, "- **Revenue model**: %s\n", sanitize(idea.RevenueModel))
		fmt.Fprintf(&b, "- **Estimated revenue**: %s\n", FormatCurrency(idea.EstimatedRevenue))
		fmt.Fprintf(&b, "- **Market opportunity**: %s\n\n", sanitize(idea.MarketOpportunity))

		r, ok := quality[idea.ID]
		if !ok || len(r.Issues) == 0 {
			continue
		}
		fmt.Fprintf(&b, "**Review notes** (quality %d):\n\n", r.QualityScore)
		for _, is := range r.Issues {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", is.Severity, is.Field, sanitize(is.Message))
		}
		for _, s := range suggestionsFor(r) {
			fmt.Fprintf(&b, "- Suggestion: %s\n", s)
		}
		b.WriteString("\n")
	}

	q := out.QualityMetrics
	fmt.Fprintf(&b, "## Quality\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Structure completeness | %.1f |\n", q.StructureCompleteness)
	fmt.Fprintf(&b, "| Content consistency | %.1f |\n", q.ContentConsistency)
	fmt.Fprintf(&b, "| Market clarity | %.1f |\n", q.MarketClarity)
	fmt.Fprintf(&b, "| Average revenue | %s |\n", FormatCurrency(out.Metadata.AverageRevenue))
	fmt.Fprintf(&b, "| Market size | %s |\n\n", FormatCurrency(out.Metadata.MarketSize))

	s := result.Stats
	fmt.Fprintf(&b, "## Run\n\n")
	fmt.Fprintf(&b, "- LLM calls: %d (retries %d)\n", s.LLMCalls, s.Retries)
	fmt.Fprintf(&b, "- Refinements: %d, discarded: %d, backfills: %d\n", s.Refinements, s.Discarded, s.Backfills)
	fmt.Fprintf(&b, "- Tokens: %d\n", out.Metadata.TokensUsed)
	fmt.Fprintf(&b, "- Processing time: %d ms\n", out.Metadata.ProcessingTimeMs)
	return b.String()
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.TrimSpace(s)
}
