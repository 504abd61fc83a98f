package ideator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joelkehle/ideator/internal/busclient"
)

// BusClient is the subset of the bus API the agent uses.
type BusClient interface {
	Register(ctx context.Context, capabilities []string, ttl time.Duration) error
	Poll(ctx context.Context, cursor int, wait time.Duration) ([]busclient.InboxEvent, int, error)
	Ack(ctx context.Context, messageID, status, reason string) error
	Event(ctx context.Context, messageID, eventType, body string, meta map[string]any) error
	Send(ctx context.Context, r busclient.Reply) (string, error)
}

type AgentConfig struct {
	AgentID   string
	PollWait  time.Duration
	Heartbeat time.Duration
	TTL       time.Duration
	// PollBackoff is the pause after a failed poll.
	PollBackoff time.Duration
	// RenderHTML adds the HTML rendering of the report to every response.
	RenderHTML bool
}

// RequestEnvelope is the body of an ideation request on the bus.
type RequestEnvelope struct {
	SessionID      string         `json:"session_id,omitempty"`
	ResearchDataID string         `json:"research_data_id"`
	Research       ResearchOutput `json:"research"`
	ConfigPatch    *ConfigPatch   `json:"config_patch,omitempty"`
}

type Agent struct {
	cfg     AgentConfig
	client  BusClient
	ideator *Ideator
	logger  *slog.Logger
	cursor  int
}

func NewAgent(cfg AgentConfig, client BusClient, ideator *Ideator, logger *slog.Logger) *Agent {
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 60 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * cfg.Heartbeat
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{cfg: cfg, client: client, ideator: ideator, logger: logger.With("agent_id", cfg.AgentID)}
}

func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}
	a.logger.Info("agent_registered", "capability", CapabilityIdeation)
	go a.heartbeatLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		events, next, err := a.client.Poll(ctx, a.cursor, a.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("poll_failed", "err", err.Error())
			if err := sleepCtx(ctx, a.cfg.PollBackoff); err != nil {
				return err
			}
			continue
		}
		a.cursor = next
		for _, evt := range events {
			a.logger.Info("message_received", "message_id", evt.MessageID, "from", evt.From, "conversation_id", evt.ConversationID)
			go func(ev busclient.InboxEvent) {
				if err := a.handleEvent(ctx, ev); err != nil {
					a.logger.Error("handle_event_failed", "message_id", ev.MessageID, "err", err.Error())
				}
			}(evt)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.register(ctx); err != nil {
				a.logger.Warn("heartbeat_failed", "err", err.Error())
			} else {
				a.logger.Debug("heartbeat_renewed", "capability", CapabilityIdeation)
			}
		}
	}
}

func (a *Agent) register(ctx context.Context) error {
	return a.client.Register(ctx, []string{CapabilityIdeation}, a.cfg.TTL)
}

func (a *Agent) handleEvent(ctx context.Context, evt busclient.InboxEvent) error {
	if err := a.client.Ack(ctx, evt.MessageID, "accepted", "generating business ideas"); err != nil {
		return err
	}

	env, err := parseRequestEnvelope(evt.Body)
	if err != nil {
		_ = a.client.Event(ctx, evt.MessageID, "error", "invalid request envelope", nil)
		_ = a.sendError(ctx, evt, "invalid request envelope: "+err.Error())
		return err
	}

	cfg := a.ideator.Config()
	if env.ConfigPatch != nil {
		cfg = cfg.Merge(*env.ConfigPatch)
	}
	req := Request{SessionID: env.SessionID, ResearchDataID: env.ResearchDataID, Research: env.Research}
	result, runErr := a.ideator.GenerateWithConfig(withMessageID(ctx, evt.MessageID), req, cfg, func(stage, message string) {
		_ = a.client.Event(ctx, evt.MessageID, "progress", message, map[string]any{"stage": stage})
	})
	if runErr != nil {
		_ = a.sendError(ctx, evt, runErr.Error())
		return runErr
	}

	envelope := BuildResponse(result)
	if a.cfg.RenderHTML {
		if html, err := RenderReportHTML(envelope.ReportMarkdown); err != nil {
			a.logger.Warn("report_html_failed", "message_id", evt.MessageID, "err", err.Error())
		} else {
			envelope.ReportHTML = html
		}
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = a.client.Send(ctx, busclient.Reply{
		To:             evt.ReplyTo(),
		ConversationID: evt.ConversationID,
		RequestID:      fmt.Sprintf("ideation-response-%s", evt.MessageID),
		Type:           "response",
		Body:           string(blob),
		Meta:           map[string]any{"stage": "done", "session_id": result.Output.SessionID},
	})
	if err != nil {
		_ = a.client.Event(ctx, evt.MessageID, "error", "failed to send response", nil)
		_ = a.sendError(ctx, evt, "failed to send response")
		return err
	}

	final := fmt.Sprintf("%d ideas, overall quality %.1f", len(result.Output.Ideas), result.Validation.OverallScore)
	_ = a.client.Event(ctx, evt.MessageID, "final", final, map[string]any{"session_id": result.Output.SessionID, "llm_calls": result.Stats.LLMCalls})
	return nil
}

func (a *Agent) sendError(ctx context.Context, evt busclient.InboxEvent, message string) error {
	_, err := a.client.Send(ctx, busclient.Reply{
		To:             evt.ReplyTo(),
		ConversationID: evt.ConversationID,
		RequestID:      fmt.Sprintf("ideation-error-%s", evt.MessageID),
		Type:           "response",
		Body:           message,
		Meta:           map[string]any{"stage": "error", "status": "error"},
	})
	return err
}

// parseRequestEnvelope accepts the envelope or, for older senders, a bare
// ResearchOutput document.
func parseRequestEnvelope(body string) (RequestEnvelope, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return RequestEnvelope{}, err
	}
	if _, ok := probe["research"]; ok {
		var env RequestEnvelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			return RequestEnvelope{}, err
		}
		if strings.TrimSpace(env.ResearchDataID) == "" {
			env.ResearchDataID = env.Research.ID
		}
		return env, nil
	}
	_, hasFacts := probe["facts"]
	_, hasAnalysis := probe["detailedAnalysis"]
	if !hasFacts && !hasAnalysis {
		return RequestEnvelope{}, fmt.Errorf("missing research or research output fields")
	}
	var research ResearchOutput
	if err := json.Unmarshal([]byte(body), &research); err != nil {
		return RequestEnvelope{}, err
	}
	return RequestEnvelope{ResearchDataID: research.ID, Research: research}, nil
}

type messageIDKey struct{}

func withMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, messageIDKey{}, id)
}

func messageIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(messageIDKey{}).(string)
	return id
}

// BusNotifier reports surfaced errors as bus "error" events on the message
// being processed.
type BusNotifier struct {
	Client BusClient
}

func (n BusNotifier) Notify(ctx context.Context, err *Error) {
	id := messageIDFrom(ctx)
	if id == "" || n.Client == nil {
		return
	}
	_ = n.Client.Event(ctx, id, "error", err.Message, map[string]any{
		"code":      err.Code,
		"retryable": err.Retryable,
		"stage":     err.Details["stage"],
	})
}
