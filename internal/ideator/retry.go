package ideator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type RetryPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, CallTimeout: 60 * time.Second}
}

// Retrier runs one external call with per-attempt timeout, classification and
// exponential backoff. It is an explicit loop so tests can inject sleep.
type Retrier struct {
	policy RetryPolicy
	sleep  SleepFunc
	logger *slog.Logger
	delays []time.Duration
	calls  int
}

func NewRetrier(policy RetryPolicy, sleep SleepFunc, logger *slog.Logger) *Retrier {
	if sleep == nil {
		sleep = sleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{policy: policy, sleep: sleep, logger: logger}
}

// Delays lists every backoff delay slept so far.
func (r *Retrier) Delays() []time.Duration { return append([]time.Duration(nil), r.delays...) }

// Calls counts attempts across all Do invocations.
func (r *Retrier) Calls() int { return r.calls }

func (r *Retrier) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.policy.MaxDelay
	b.Reset()
	return b
}

// Do calls fn until it succeeds, fails with a non-retryable classification,
// or MaxRetries retries are spent. It returns the attempt count.
func (r *Retrier) Do(ctx context.Context, op string, fallback ErrorCode, fn func(ctx context.Context) error) (int, error) {
	sched := r.schedule()
	attempts := 0
	for {
		attempts++
		r.calls++
		start := time.Now()
		r.logger.Debug("llm_attempt_start", "op", op, "attempt", attempts)

		err := r.attempt(ctx, fn)
		if err == nil {
			r.logger.Debug("llm_attempt_success", "op", op, "attempt", attempts, "elapsed_ms", time.Since(start).Milliseconds())
			return attempts, nil
		}
		classified := ClassifyError(err, fallback)
		r.logger.Warn("llm_attempt_error", "op", op, "attempt", attempts, "code", classified.Code,
			"retryable", classified.Retryable, "elapsed_ms", time.Since(start).Milliseconds(), "err", err.Error())

		if !classified.Retryable || attempts > r.policy.MaxRetries || ctx.Err() != nil {
			classified.Details["attempts"] = attempts
			classified.Details["op"] = op
			return attempts, classified
		}
		delay := sched.NextBackOff()
		if delay < 0 {
			delay = r.policy.MaxDelay
		}
		r.delays = append(r.delays, delay)
		if err := r.sleep(ctx, delay); err != nil {
			c := ClassifyError(err, fallback)
			c.Details["attempts"] = attempts
			return attempts, c
		}
	}
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	callCtx := ctx
	if r.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()
	}
	defer func() {
		if v := recover(); v != nil {
			err = WrapUnknown(v)
		}
	}()
	err = fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return wrapError(CodeTimeout, true, err)
	}
	return err
}
