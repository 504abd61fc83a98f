package ideator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func testPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

func TestRetrierRetriesTransientFailure(t *testing.T) {
	sleeper := &sleepRecorder{}
	r := NewRetrier(testPolicy(3), sleeper.Sleep, discardLogger())
	calls := 0
	attempts, err := r.Do(context.Background(), "generate_batch", CodeLLMGenerationFailed, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("500: Server Error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 || calls != 2 {
		t.Fatalf("expected 2 attempts, got %d (%d calls)", attempts, calls)
	}
	if got := sleeper.Delays(); !reflect.DeepEqual(got, []time.Duration{time.Second}) {
		t.Fatalf("unexpected delays: %v", got)
	}
	if !reflect.DeepEqual(r.Delays(), sleeper.Delays()) {
		t.Fatalf("retrier delays %v differ from slept %v", r.Delays(), sleeper.Delays())
	}
}

func TestRetrierStopsOnNonRetryable(t *testing.T) {
	sleeper := &sleepRecorder{}
	r := NewRetrier(testPolicy(3), sleeper.Sleep, discardLogger())
	attempts, err := r.Do(context.Background(), "generate_batch", CodeLLMGenerationFailed, func(context.Context) error {
		return errors.New("Authentication failed")
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	var ie *Error
	if !errors.As(err, &ie) || ie.Retryable {
		t.Fatalf("expected non-retryable classified error, got %v", err)
	}
	if len(sleeper.Delays()) != 0 {
		t.Fatalf("should not sleep: %v", sleeper.Delays())
	}
}

func TestRetrierExhaustsWithCappedBackoff(t *testing.T) {
	sleeper := &sleepRecorder{}
	r := NewRetrier(testPolicy(5), sleeper.Sleep, discardLogger())
	attempts, err := r.Do(context.Background(), "generate_batch", CodeLLMGenerationFailed, func(context.Context) error {
		return errors.New("503 Service Unavailable")
	})
	if attempts != 6 {
		t.Fatalf("expected MaxRetries+1 attempts, got %d", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	if got := sleeper.Delays(); !reflect.DeepEqual(got, want) {
		t.Fatalf("delays: got %v want %v", got, want)
	}
	var ie *Error
	if !errors.As(err, &ie) || ie.Code != CodeLLMGenerationFailed || !ie.Retryable {
		t.Fatalf("unexpected error: %v", err)
	}
	if ie.Details["attempts"] != 6 || ie.Details["op"] != "generate_batch" {
		t.Fatalf("details not recorded: %v", ie.Details)
	}
	if r.Calls() != 6 {
		t.Fatalf("calls: %d", r.Calls())
	}
}

func TestRetrierZeroRetries(t *testing.T) {
	r := NewRetrier(testPolicy(0), (&sleepRecorder{}).Sleep, discardLogger())
	attempts, err := r.Do(context.Background(), "op", CodeLLMGenerationFailed, func(context.Context) error {
		return errors.New("500: Server Error")
	})
	if attempts != 1 || err == nil {
		t.Fatalf("expected a single failing attempt, got %d, %v", attempts, err)
	}
}

func TestRetrierRecoversPanic(t *testing.T) {
	r := NewRetrier(testPolicy(3), (&sleepRecorder{}).Sleep, discardLogger())
	attempts, err := r.Do(context.Background(), "op", CodeLLMGenerationFailed, func(context.Context) error {
		panic("boom")
	})
	var ie *Error
	if !errors.As(err, &ie) || ie.Code != CodeEvaluationFailed || ie.Retryable {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("panics are not retried, got %d attempts", attempts)
	}
}

func TestRetrierStopsWhenSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	r := NewRetrier(testPolicy(3), sleep, discardLogger())
	attempts, err := r.Do(ctx, "op", CodeLLMGenerationFailed, func(context.Context) error {
		return errors.New("500: Server Error")
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRetrierPerAttemptTimeout(t *testing.T) {
	policy := testPolicy(0)
	policy.CallTimeout = 10 * time.Millisecond
	r := NewRetrier(policy, (&sleepRecorder{}).Sleep, discardLogger())
	_, err := r.Do(context.Background(), "op", CodeLLMGenerationFailed, func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("request aborted")
	})
	var ie *Error
	if !errors.As(err, &ie) || ie.Code != CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}
