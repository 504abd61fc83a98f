package ideator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/ideator/internal/llm"
)

const tracerName = "github.com/joelkehle/ideator/internal/ideator"

type StageProgressFn func(stage, message string)

// Ideator turns research output into a ranked batch of business ideas.
type Ideator struct {
	gateway llm.Gateway

	mu       sync.RWMutex
	cfg      Config
	keywords KeywordTables

	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time
	sleep    SleepFunc
	tracer   trace.Tracer
	newID    func() string
}

type Option func(*Ideator)

func WithLogger(l *slog.Logger) Option {
	return func(i *Ideator) {
		if l != nil {
			i.logger = l
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(i *Ideator) {
		if n != nil {
			i.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Ideator) {
		if now != nil {
			i.now = now
		}
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(s SleepFunc) Option {
	return func(i *Ideator) {
		if s != nil {
			i.sleep = s
		}
	}
}

func WithKeywordTables(kw KeywordTables) Option {
	return func(i *Ideator) { i.keywords = kw }
}

func WithTracer(t trace.Tracer) Option {
	return func(i *Ideator) {
		if t != nil {
			i.tracer = t
		}
	}
}

func WithSessionIDs(fn func() string) Option {
	return func(i *Ideator) {
		if fn != nil {
			i.newID = fn
		}
	}
}

func New(gateway llm.Gateway, cfg Config, opts ...Option) *Ideator {
	i := &Ideator{
		gateway:  gateway,
		cfg:      cfg,
		keywords: DefaultKeywordTables(),
		logger:   slog.Default(),
		notifier: nopNotifier{},
		now:      time.Now,
		sleep:    sleepContext,
		tracer:   otel.Tracer(tracerName),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Ideator) Config() Config {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.cfg
}

// UpdateConfig merges p into the shared config. In-flight invocations keep
// the snapshot they started with.
func (i *Ideator) UpdateConfig(p ConfigPatch) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	next := i.cfg.Merge(p)
	if err := next.Validate(); err != nil {
		return err
	}
	i.cfg = next
	return nil
}

func (i *Ideator) Generate(ctx context.Context, req Request) (IdeatorOutput, error) {
	res, err := i.run(ctx, req, i.Config(), nil)
	return res.Output, err
}

func (i *Ideator) GenerateWithProgress(ctx context.Context, req Request, progress StageProgressFn) (Result, error) {
	return i.run(ctx, req, i.Config(), progress)
}

// GenerateWithConfig runs one invocation against cfg instead of the shared
// config.
func (i *Ideator) GenerateWithConfig(ctx context.Context, req Request, cfg Config, progress StageProgressFn) (Result, error) {
	return i.run(ctx, req, cfg, progress)
}

func (i *Ideator) run(ctx context.Context, req Request, cfg Config, progress StageProgressFn) (res Result, err error) {
	ctx, span := i.tracer.Start(ctx, "ideator.generate", trace.WithAttributes(
		attribute.String("ideator.research_data_id", req.ResearchDataID),
		attribute.Int("ideator.required_count", cfg.Ideation.RequiredCount),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var ie *Error
			if errors.As(err, &ie) {
				if ie.Details == nil {
					ie.Details = map[string]any{}
				}
				ie.Details["stage"] = StageNameFromError(err)
				i.notifier.Notify(ctx, ie)
			}
		}
		span.End()
	}()

	if err := cfg.Validate(); err != nil {
		return res, &StageError{Stage: "config", Err: err}
	}
	if !HasSufficientInput(req.Research) {
		return res, &StageError{Stage: "extract", Err: NewError(CodeInsufficientInput, "research output has no facts, opportunities, challenges, trends or summary")}
	}
	if err := loadSchemas(); err != nil {
		return res, &StageError{Stage: "generate", Err: wrapError(CodeEvaluationFailed, false, err)}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = i.newID()
	}
	r := &invocation{
		Ideator:   i,
		cfg:       cfg,
		validator: NewValidator(cfg.Ideation),
		retrier:   NewRetrier(cfg.RetryPolicy(), i.sleep, i.logger),
		logger:    i.logger.With("session_id", sessionID),
		progress:  progress,
		started:   i.now(),
		model:     cfg.LLM.Model,
	}
	r.logger.Info("ideation_start", "research_data_id", req.ResearchDataID, "required_count", cfg.Ideation.RequiredCount)

	r.emit("extract", "Extracting market context...")
	mc := ExtractMarketContext(req.Research, i.keywords)
	r.mc = mc

	r.emit("generate", "Generating ideas...")
	raw, err := r.generateBatch(ctx)
	if err != nil {
		r.finishStats(&res)
		return res, &StageError{Stage: "generate", Err: err}
	}
	r.seq = len(raw.Ideas)
	out := Enrich(raw, mc, r.enrichInput(sessionID, req.ResearchDataID))

	ideas, err := r.refineAndBackfill(ctx, out.Ideas)
	if err != nil {
		r.finishStats(&res)
		return res, err
	}

	r.emit("rank", "Ranking ideas...")
	ranked := Rank(ideas)
	if n := cfg.Ideation.RequiredCount; len(ranked) > n {
		r.logger.Info("ideas_trimmed", "returned", len(ranked), "kept", n)
		ranked = ranked[:n]
		r.changed = true
	}

	summary := out.Summary
	if r.changed {
		summary = ""
	}
	final := Enrich(RawBatch{Ideas: ranked, Summary: summary}, mc, r.enrichInput(sessionID, req.ResearchDataID))
	validation := r.validator.ValidateBatch(final.Ideas)
	final.QualityMetrics = r.validator.ComputeQualityMetrics(final.Ideas, validation.Results)

	res.Output = final
	res.Validation = validation
	res.Context = mc
	r.finishStats(&res)
	span.SetAttributes(
		attribute.Int("ideator.llm_calls", res.Stats.LLMCalls),
		attribute.Int("ideator.tokens_used", final.Metadata.TokensUsed),
	)
	r.logger.Info("ideation_complete", "ideas", len(final.Ideas), "overall_score", validation.OverallScore,
		"llm_calls", res.Stats.LLMCalls, "retries", res.Stats.Retries, "elapsed_ms", final.Metadata.ProcessingTimeMs)
	return res, nil
}

// invocation carries the state of one Generate call.
type invocation struct {
	*Ideator
	cfg       Config
	validator *Validator
	retrier   *Retrier
	logger    *slog.Logger
	progress  StageProgressFn
	mc        MarketContext

	started time.Time
	model   string
	tokens  int
	seq     int
	changed bool
	stats   RunStats
}

func (r *invocation) emit(stage, message string) {
	if r.progress != nil {
		r.progress(stage, message)
	}
}

func (r *invocation) enrichInput(sessionID, researchDataID string) EnrichInput {
	return EnrichInput{
		SessionID:      sessionID,
		ResearchDataID: researchDataID,
		Model:          r.model,
		TokensUsed:     r.tokens,
		StartedAt:      r.started,
		Now:            r.now(),
		TargetRevenue:  r.cfg.Ideation.TargetRevenue,
	}
}

func (r *invocation) finishStats(res *Result) {
	r.stats.LLMCalls = r.retrier.Calls()
	r.stats.BackoffDelays = r.retrier.Delays()
	res.Stats = r.stats
}

func (r *invocation) options() llm.Options {
	return llm.Options{
		Model:            r.cfg.LLM.Model,
		Temperature:      r.cfg.LLM.Temperature,
		MaxTokens:        r.cfg.LLM.MaxTokens,
		TopP:             r.cfg.LLM.TopP,
		FrequencyPenalty: r.cfg.LLM.FrequencyPenalty,
		PresencePenalty:  r.cfg.LLM.PresencePenalty,
	}
}

// invoke performs one gateway call under the retry policy and decodes the
// structured object into a fresh T on every attempt.
func invoke[T any](ctx context.Context, r *invocation, op, prompt string, schema llm.Schema, fallback ErrorCode) (T, error) {
	var out T
	ctx, span := r.tracer.Start(ctx, "ideator.llm_call", trace.WithAttributes(attribute.String("ideator.op", op)))
	defer span.End()

	attempts, err := r.retrier.Do(ctx, op, fallback, func(ctx context.Context) error {
		resp, err := r.gateway.InvokeStructured(ctx, prompt, schema, r.options())
		if err != nil {
			return err
		}
		var v T
		if err := decodeObject(resp.Object, &v); err != nil {
			return err
		}
		out = v
		r.tokens += resp.TokensUsed
		if resp.Model != "" {
			r.model = resp.Model
		}
		return nil
	})
	if attempts > 1 {
		r.stats.Retries += attempts - 1
	}
	span.SetAttributes(attribute.Int("ideator.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

func (r *invocation) generateBatch(ctx context.Context) (RawBatch, error) {
	prompt := ComposeBatchPrompt(r.mc, r.cfg.Ideation)
	return invoke[RawBatch](ctx, r, "generate_batch", prompt, batchSchema, CodeLLMGenerationFailed)
}

func (r *invocation) generateOne(ctx context.Context, existing []BusinessIdea) (BusinessIdea, error) {
	prompt := ComposeSingleIdeaPrompt(r.mc, r.cfg.Ideation, titles(existing), "")
	resp, err := invoke[ideaResponse](ctx, r, "generate_single", prompt, ideaSchema, CodeLLMGenerationFailed)
	return resp.Idea, err
}

func (r *invocation) refineIdea(ctx context.Context, idea BusinessIdea, suggestions []string) (BusinessIdea, error) {
	prompt := ComposeRefinementPrompt(idea, suggestions, r.mc, r.cfg.Ideation)
	resp, err := invoke[ideaResponse](ctx, r, "refine_idea", prompt, refineSchema, CodeLLMGenerationFailed)
	return resp.Idea, err
}

// nextIdea normalizes an idea produced after the initial batch. Its id must
// not collide with any id in taken.
func (r *invocation) nextIdea(idea BusinessIdea, taken map[string]bool) BusinessIdea {
	r.seq++
	idea = normalizeIdea(idea, r.mc)
	if idea.ID == "" || taken[idea.ID] {
		idea.ID = syntheticID(r.now(), r.seq, taken)
	}
	return idea
}

func titles(ideas []BusinessIdea) []string {
	out := make([]string, 0, len(ideas))
	for _, idea := range ideas {
		if idea.Title != "" {
			out = append(out, idea.Title)
		}
	}
	return out
}
