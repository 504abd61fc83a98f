package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const DefaultModel = "claude-sonnet-4-20250514"

const systemPrompt = "You are a business strategist who turns market research into concrete, fundable business ideas. " +
	"You never invent statistics that contradict the research provided. Return strict JSON only."

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type AnthropicClientCreator func(apiKey string, opts ...option.RequestOption) AnthropicMessager

func defaultAnthropicCreator(apiKey string, opts ...option.RequestOption) AnthropicMessager {
	c := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

// AnthropicGateway implements Gateway on the Anthropic messages API. The JSON
// schema travels in the prompt; the reply is checked to be a JSON object.
type AnthropicGateway struct {
	messages     AnthropicMessager
	defaultModel string
}

type AnthropicConfig struct {
	APIKeyEnv string
	BaseURL   string
	Model     string
}

func NewAnthropicGatewayFromEnv(cfg AnthropicConfig) (*AnthropicGateway, error) {
	env := cfg.APIKeyEnv
	if env == "" {
		env = "ANTHROPIC_API_KEY"
	}
	apiKey := strings.TrimSpace(os.Getenv(env))
	if apiKey == "" {
		return nil, errors.New(env + " not configured")
	}
	var opts []option.RequestOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicGateway{messages: newAnthropicClient(apiKey, opts...), defaultModel: model}, nil
}

func NewAnthropicGateway(messages AnthropicMessager, model string) *AnthropicGateway {
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicGateway{messages: messages, defaultModel: model}
}

func (g *AnthropicGateway) InvokeStructured(ctx context.Context, prompt string, schema Schema, opts Options) (Response, error) {
	model := opts.Model
	if model == "" {
		model = g.defaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(withSchema(prompt, schema)))},
		Temperature: anthropic.Float(opts.Temperature),
	}
	// The messages API rejects temperature and top_p together on newer models.
	if opts.TopP > 0 && opts.TopP < 1 && opts.Temperature == 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}

	resp, err := g.messages.New(ctx, params)
	if err != nil {
		return Response{}, mapAnthropicError(err)
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	raw := StripCodeFences(sb.String())
	if !isJSONObject(raw) {
		return Response{}, NewGatewayError(ErrSchemaMismatch, 0, errors.New("response is not a JSON object"))
	}
	return Response{
		Object:     json.RawMessage(raw),
		Model:      string(resp.Model),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
	}, nil
}

func withSchema(prompt string, schema Schema) string {
	if len(schema.Definition) == 0 {
		return prompt + "\n\nRespond with only valid JSON."
	}
	return prompt + "\n\nRequired JSON schema (" + schema.Name + "):\n" + string(schema.Definition) +
		"\n\nRespond with only valid JSON matching the schema."
}

func mapAnthropicError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewGatewayError(ErrTimeout, 0, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewGatewayError(ErrTimeout, 0, err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == 429:
			return NewGatewayError(ErrRateLimited, code, err)
		case code == 401 || code == 403:
			return NewGatewayError(ErrAuthFailed, code, err)
		case code == 408 || code == 504:
			return NewGatewayError(ErrTimeout, code, err)
		default:
			return NewGatewayError(ErrUnknown, code, err)
		}
	}
	return NewGatewayError(ErrUnknown, 0, err)
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func isJSONObject(s string) bool {
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var v map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &v) == nil
}
