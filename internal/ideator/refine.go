package ideator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joelkehle/ideator/internal/llm"
)

// refineAndBackfill repairs the batch: one refinement call per idea that is
// invalid or under the quality bar, then single-idea generations until the
// required count is reached. Refined ideas are not validated again.
func (r *invocation) refineAndBackfill(ctx context.Context, ideas []BusinessIdea) ([]BusinessIdea, error) {
	ctx, span := r.tracer.Start(ctx, "ideator.refine_and_backfill")
	defer span.End()

	if r.cfg.Validation.EnableValidation {
		r.emit("validate", "Validating ideas...")
		batch := r.validator.ValidateBatch(ideas)
		r.logger.Info("batch_validated", "valid", batch.IsValid, "overall_score", batch.OverallScore, "ideas", len(ideas))
		if !batch.IsValid || batch.OverallScore < float64(r.cfg.Validation.MinQualityScore) {
			var err error
			if ideas, err = r.refinePass(ctx, ideas, batch); err != nil {
				return nil, &StageError{Stage: "refine", Err: err}
			}
		}
	}
	return r.backfill(ctx, ideas)
}

func (r *invocation) refinePass(ctx context.Context, ideas []BusinessIdea, batch BatchValidation) ([]BusinessIdea, error) {
	minScore := r.cfg.Validation.MinQualityScore
	out := make([]BusinessIdea, 0, len(ideas))
	for idx, idea := range ideas {
		res := batch.Results[idx]
		if res.IsValid && res.QualityScore >= minScore {
			out = append(out, idea)
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, ClassifyError(err, CodeLLMGenerationFailed)
		}
		r.emit("refine", fmt.Sprintf("Refining idea %d of %d...", idx+1, len(ideas)))
		r.logger.Info("refine_idea", "idea_id", idea.ID, "quality_score", res.QualityScore, "valid", res.IsValid, "issues", len(res.Issues))

		r.stats.Refinements++
		r.changed = true
		refined, err := r.refineIdea(ctx, idea, r.validator.Suggestions(res))
		if err != nil {
			r.stats.Discarded++
			r.logger.Warn("refine_idea_discarded", "idea_id", idea.ID, "err", err.Error())
			continue
		}
		if strings.TrimSpace(refined.ID) == "" {
			refined.ID = idea.ID
		}
		out = append(out, r.nextIdea(refined, idSet(out, ideas[idx+1:])))
	}
	return out, nil
}

func (r *invocation) backfill(ctx context.Context, ideas []BusinessIdea) ([]BusinessIdea, error) {
	want := r.cfg.Ideation.RequiredCount
	for len(ideas) < want {
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: "backfill", Err: ClassifyError(err, CodeIdeaCountMismatch)}
		}
		r.emit("backfill", fmt.Sprintf("Generating additional idea %d of %d...", len(ideas)+1, want))
		idea, err := r.generateOne(ctx, ideas)
		if err != nil {
			e := wrapError(CodeIdeaCountMismatch, false, err)
			e.Message = fmt.Sprintf("could not reach %d ideas (have %d)", want, len(ideas))
			e.Details["have"] = len(ideas)
			e.Details["want"] = want
			return nil, &StageError{Stage: "backfill", Err: e}
		}
		r.stats.Backfills++
		r.changed = true
		idea = r.nextIdea(idea, idSet(ideas))
		ideas = append(ideas, idea)
		r.logger.Info("backfill_idea", "idea_id", idea.ID, "have", len(ideas), "want", want)
	}
	return ideas, nil
}

func decodeObject(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return llm.NewGatewayError(llm.ErrSchemaMismatch, 0, err)
	}
	return nil
}
