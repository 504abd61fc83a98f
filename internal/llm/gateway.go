// Package llm defines the structured-generation gateway the ideation core
// calls, plus the Anthropic-backed implementation used in production.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Schema names a JSON Schema document the gateway output must satisfy.
type Schema struct {
	Name       string
	Definition json.RawMessage
}

type Options struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Response is one structured generation. Object holds the decoded JSON value
// exactly as the model produced it.
type Response struct {
	Object     json.RawMessage
	Model      string
	TokensUsed int
}

type Gateway interface {
	InvokeStructured(ctx context.Context, prompt string, schema Schema, opts Options) (Response, error)
}

// Failure kinds a gateway reports. Match with errors.Is.
var (
	ErrSchemaMismatch = errors.New("structured output did not match schema")
	ErrRateLimited    = errors.New("rate limited (429 Too Many Requests)")
	ErrAuthFailed     = errors.New("Authentication failed")
	ErrTimeout        = errors.New("gateway timeout")
	ErrUnknown        = errors.New("gateway failure")
)

type GatewayError struct {
	Kind       error
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err == nil && e.StatusCode > 0:
		return fmt.Sprintf("%v (status %d)", e.Kind, e.StatusCode)
	case e.Err == nil:
		return e.Kind.Error()
	case e.StatusCode > 0:
		return fmt.Sprintf("%v (status %d): %v", e.Kind, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
}

func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewGatewayError(kind error, status int, err error) *GatewayError {
	return &GatewayError{Kind: kind, StatusCode: status, Err: err}
}
