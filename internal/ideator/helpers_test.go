package ideator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/joelkehle/ideator/internal/llm"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type cannedStep struct {
	object any
	raw    string
	err    error
	panic  any
}

type gatewayCall struct {
	Prompt string
	Schema string
}

// queueGateway answers structured calls from a fixed queue of steps and
// records every prompt it saw.
type queueGateway struct {
	mu    sync.Mutex
	steps []cannedStep
	calls []gatewayCall
}

func newQueue(steps ...cannedStep) *queueGateway {
	return &queueGateway{steps: steps}
}

func (q *queueGateway) InvokeStructured(ctx context.Context, prompt string, schema llm.Schema, _ llm.Options) (llm.Response, error) {
	q.mu.Lock()
	q.calls = append(q.calls, gatewayCall{Prompt: prompt, Schema: schema.Name})
	if len(q.steps) == 0 {
		q.mu.Unlock()
		return llm.Response{}, errors.New("invalid request: unexpected gateway call")
	}
	step := q.steps[0]
	q.steps = q.steps[1:]
	q.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	if step.panic != nil {
		panic(step.panic)
	}
	if step.err != nil {
		return llm.Response{}, step.err
	}
	raw := json.RawMessage(step.raw)
	if step.raw == "" {
		b, err := json.Marshal(step.object)
		if err != nil {
			return llm.Response{}, err
		}
		raw = b
	}
	return llm.Response{Object: raw, Model: "test-model", TokensUsed: 100}, nil
}

func (q *queueGateway) Calls() []gatewayCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]gatewayCall(nil), q.calls...)
}

func (q *queueGateway) schemas() []string {
	var out []string
	for _, c := range q.Calls() {
		out = append(out, c.Schema)
	}
	return out
}

func goodIdea(title string, revenue float64) BusinessIdea {
	return BusinessIdea{
		Title:                    title,
		Description:              "A staffing marketplace that matches licensed nurses with regional hospitals on short notice, with credential checks built in.",
		TargetCustomers:          []string{"Regional hospitals", "Home care agencies"},
		CustomerPains:            []string{"Unfilled night shifts", "Slow credential checks"},
		ValueProposition:         "Fills open shifts within hours instead of weeks.",
		RevenueModel:             "Fifteen percent commission on every filled shift.",
		EstimatedRevenue:         revenue,
		ImplementationDifficulty: LevelMedium,
		MarketOpportunity:        "Nationwide nurse shortage in regional hospitals",
	}
}

func batchOf(revenues ...float64) RawBatch {
	b := RawBatch{Summary: "Canned batch"}
	for i, r := range revenues {
		b.Ideas = append(b.Ideas, goodIdea(fmt.Sprintf("Idea %d", i+1), r))
	}
	return b
}

func single(idea BusinessIdea) cannedStep {
	return cannedStep{object: map[string]any{"idea": idea}}
}

func sampleResearch() ResearchOutput {
	growth := 12.5
	return ResearchOutput{
		ID: "research-42",
		Facts: []string{
			"Hospital staffing demand is growing 12% per year",
			"Regional hospitals report a severe shortage of night nurses",
		},
		Entities: []Entity{{Name: "ShiftCo", Type: "competitor"}},
		DetailedAnalysis: DetailedAnalysis{
			Opportunities: []string{"On-demand nurse staffing", "Credential verification as a service"},
			Challenges:    []string{"Severe shortage of licensed nurses", "Manual scheduling in spreadsheets"},
			MarketTrends:  []string{"Shift to gig-style healthcare work"},
		},
		Metrics:           ResearchMetrics{MarketSize: 900_000_000_000, GrowthRate: &growth},
		ProcessedResearch: ProcessedResearch{Summary: "Nurse staffing is constrained and fragmented."},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestIdeator(gw llm.Gateway, cfg Config, opts ...Option) (*Ideator, *sleepRecorder) {
	sleeper := &sleepRecorder{}
	base := []Option{
		WithLogger(discardLogger()),
		WithClock(func() time.Time { return testNow }),
		WithSleep(sleeper.Sleep),
		WithSessionIDs(func() string { return "session-1" }),
	}
	return New(gw, cfg, append(base, opts...)...), sleeper
}
