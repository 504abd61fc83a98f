package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type mockMessager struct {
	response *anthropic.Message
	err      error
	params   []anthropic.MessageNewParams
}

func (m *mockMessager) New(_ context.Context, p anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	m.params = append(m.params, p)
	return m.response, m.err
}

func newMockMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
		Model:   anthropic.Model("test-model"),
		Usage:   anthropic.Usage{InputTokens: 120, OutputTokens: 80},
	}
}

func TestInvokeStructuredParsesFencedJSON(t *testing.T) {
	m := &mockMessager{response: newMockMessage("```json\n{\"ideas\":[]}\n```")}
	g := NewAnthropicGateway(m, "")
	schema := Schema{Name: "batch", Definition: []byte(`{"type":"object"}`)}
	resp, err := g.InvokeStructured(context.Background(), "make ideas", schema, Options{Temperature: 0.7, MaxTokens: 2048})
	if err != nil {
		t.Fatalf("InvokeStructured: %v", err)
	}
	if string(resp.Object) != `{"ideas":[]}` {
		t.Fatalf("unexpected object %s", resp.Object)
	}
	if resp.TokensUsed != 200 || resp.Model != "test-model" {
		t.Fatalf("unexpected usage/model: %+v", resp)
	}
	if len(m.params) != 1 || m.params[0].MaxTokens != 2048 {
		t.Fatalf("expected max tokens to be forwarded, got %+v", m.params)
	}
	if string(m.params[0].Model) != DefaultModel {
		t.Fatalf("expected default model, got %s", m.params[0].Model)
	}
}

func TestInvokeStructuredRejectsNonObject(t *testing.T) {
	g := NewAnthropicGateway(&mockMessager{response: newMockMessage("sorry, I cannot help")}, "m")
	_, err := g.InvokeStructured(context.Background(), "p", Schema{}, Options{})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestMapAnthropicErrorStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{429, ErrRateLimited},
		{401, ErrAuthFailed},
		{403, ErrAuthFailed},
		{504, ErrTimeout},
		{500, ErrUnknown},
	}
	for _, tc := range cases {
		apiErr := &anthropic.Error{
			StatusCode: tc.status,
			Request:    httptest.NewRequest(http.MethodPost, "/v1/messages", nil),
			Response:   &http.Response{StatusCode: tc.status},
		}
		got := mapAnthropicError(apiErr)
		if !errors.Is(got, tc.want) {
			t.Fatalf("status %d: expected %v", tc.status, tc.want)
		}
		var ge *GatewayError
		if !errors.As(got, &ge) || ge.StatusCode != tc.status {
			t.Fatalf("status %d: expected gateway error with status", tc.status)
		}
	}
	if !errors.Is(mapAnthropicError(context.DeadlineExceeded), ErrTimeout) {
		t.Fatal("deadline exceeded should map to timeout")
	}
}

func TestNewAnthropicGatewayFromEnvRequiresKey(t *testing.T) {
	t.Setenv("IDEATOR_TEST_KEY", "")
	if _, err := NewAnthropicGatewayFromEnv(AnthropicConfig{APIKeyEnv: "IDEATOR_TEST_KEY"}); err == nil {
		t.Fatal("expected missing key error")
	}

	mock := &mockMessager{response: newMockMessage(`{"ok":true}`)}
	old := newAnthropicClient
	newAnthropicClient = func(string, ...option.RequestOption) AnthropicMessager { return mock }
	defer func() { newAnthropicClient = old }()

	t.Setenv("IDEATOR_TEST_KEY", "k")
	g, err := NewAnthropicGatewayFromEnv(AnthropicConfig{APIKeyEnv: "IDEATOR_TEST_KEY", Model: "custom"})
	if err != nil {
		t.Fatalf("NewAnthropicGatewayFromEnv: %v", err)
	}
	if _, err := g.InvokeStructured(context.Background(), "p", Schema{}, Options{}); err != nil {
		t.Fatalf("InvokeStructured: %v", err)
	}
	if string(mock.params[0].Model) != "custom" {
		t.Fatalf("expected configured model, got %s", mock.params[0].Model)
	}
}

func TestGatewayErrorMessage(t *testing.T) {
	err := NewGatewayError(ErrRateLimited, 429, errors.New("slow down"))
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status in message: %s", err.Error())
	}
}
