package ideator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/joelkehle/ideator/internal/llm"
)

type ErrorCode string

const (
	CodeInsufficientInput      ErrorCode = "INSUFFICIENT_INPUT"
	CodeLLMGenerationFailed    ErrorCode = "LLM_GENERATION_FAILED"
	CodeInvalidOutputFormat    ErrorCode = "INVALID_OUTPUT_FORMAT"
	CodeIdeaCountMismatch      ErrorCode = "IDEA_COUNT_MISMATCH"
	CodeQualityThresholdNotMet ErrorCode = "QUALITY_THRESHOLD_NOT_MET"
	CodeTokenLimitExceeded     ErrorCode = "TOKEN_LIMIT_EXCEEDED"
	CodeTimeout                ErrorCode = "TIMEOUT"
	CodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	CodeEvaluationFailed       ErrorCode = "EVALUATION_FAILED"
)

var nonRetryable = map[ErrorCode]bool{
	CodeInsufficientInput:  true,
	CodeValidationFailed:   true,
	CodeTokenLimitExceeded: true,
	CodeEvaluationFailed:   true,
}

// Error is the only error shape surfaced to callers of the ideator.
type Error struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Err       error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: !nonRetryable[code], Details: map[string]any{}, Timestamp: time.Now()}
}

func wrapError(code ErrorCode, retryable bool, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Retryable: retryable, Details: map[string]any{}, Timestamp: time.Now(), Err: err}
}

// WrapUnknown turns a non-error value (a recovered panic) into a
// non-retryable EVALUATION_FAILED error that keeps the original value.
func WrapUnknown(v any) *Error {
	e := NewError(CodeEvaluationFailed, fmt.Sprintf("unexpected failure: %v", v))
	e.Retryable = false
	e.Details["original"] = v
	return e
}

var (
	statusRe       = regexp.MustCompile(`(?:^|status(?:\s*code)?\s*[:=]?\s*|code\s*[:=]?\s*|http(?:/[\d.]+)?\s+|:\s+)([45]\d\d)(?:\W|$)`)
	tokenMarkers   = []string{"token", "context_length"}
	timeoutMarkers = []string{"timeout", "etimedout", "timed out", "deadline exceeded"}
	authMarkers    = []string{"authentication failed", "unauthorized", "forbidden"}
	invalidMarkers = []string{"invalid", "validation"}
	rateMarkers    = []string{"too many requests", "rate limit"}
	networkMarkers = []string{"econnrefused", "econnreset", "connection refused", "connection reset", "server error", "service unavailable", "bad gateway", "overloaded"}
)

// ClassifyError maps any failure onto the closed taxonomy. Typed gateway and
// context errors are decided first, then the message is pattern matched, and
// only then does fallback apply.
func ClassifyError(err error, fallback ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return wrapError(CodeTimeout, true, err)
	case errors.Is(err, context.Canceled):
		return wrapError(fallback, false, err)
	case errors.Is(err, llm.ErrSchemaMismatch):
		return wrapError(CodeInvalidOutputFormat, true, err)
	case errors.Is(err, llm.ErrRateLimited):
		return wrapError(CodeLLMGenerationFailed, true, err)
	case errors.Is(err, llm.ErrAuthFailed):
		return wrapError(CodeLLMGenerationFailed, false, err)
	case errors.Is(err, llm.ErrTimeout):
		return wrapError(CodeTimeout, true, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return wrapError(CodeTimeout, true, err)
	}

	msg := strings.ToLower(err.Error())
	status := ""
	if m := statusRe.FindStringSubmatch(msg); len(m) == 2 {
		status = m[1]
	}
	// Rate limit messages often mention tokens per minute, so they are
	// matched before the token markers.
	switch {
	case status == "429" || containsAny(msg, rateMarkers):
		return wrapError(CodeLLMGenerationFailed, true, err)
	case containsAny(msg, tokenMarkers):
		return wrapError(CodeTokenLimitExceeded, false, err)
	case containsAny(msg, timeoutMarkers):
		return wrapError(CodeTimeout, true, err)
	case status == "401" || status == "403" || containsAny(msg, authMarkers):
		return wrapError(CodeLLMGenerationFailed, false, err)
	case containsAny(msg, invalidMarkers):
		return wrapError(CodeValidationFailed, false, err)
	case strings.HasPrefix(status, "5") || containsAny(msg, networkMarkers):
		return wrapError(CodeLLMGenerationFailed, true, err)
	}
	return wrapError(fallback, !nonRetryable[fallback], err)
}

func IsRetryable(err error) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// StageError records which pipeline stage produced err.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "ideator"
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
