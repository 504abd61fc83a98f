package ideator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joelkehle/ideator/internal/busclient"
)

type busEvent struct {
	MessageID string
	Type      string
	Body      string
	Meta      map[string]any
}

type fakeBus struct {
	mu      sync.Mutex
	acks    []string
	events  []busEvent
	replies []busclient.Reply
	sendErr error
	pollErr error
	polls   int
}

func (b *fakeBus) Register(context.Context, []string, time.Duration) error { return nil }

func (b *fakeBus) Poll(ctx context.Context, cursor int, _ time.Duration) ([]busclient.InboxEvent, int, error) {
	b.mu.Lock()
	b.polls++
	err := b.pollErr
	b.mu.Unlock()
	if err != nil {
		return nil, cursor, err
	}
	<-ctx.Done()
	return nil, cursor, ctx.Err()
}

func (b *fakeBus) Ack(_ context.Context, messageID, status, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acks = append(b.acks, messageID+":"+status)
	return nil
}

func (b *fakeBus) Event(_ context.Context, messageID, eventType, body string, meta map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, busEvent{MessageID: messageID, Type: eventType, Body: body, Meta: meta})
	return nil
}

func (b *fakeBus) Send(_ context.Context, r busclient.Reply) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return "", b.sendErr
	}
	b.replies = append(b.replies, r)
	return "msg-out", nil
}

func (b *fakeBus) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

func inbox(body string) busclient.InboxEvent {
	return busclient.InboxEvent{
		MessageID:      "m-1",
		Type:           "request",
		From:           "research-agent",
		ConversationID: "conv-1",
		Body:           body,
		Meta:           map[string]any{"reply_to": "orchestrator"},
	}
}

func envelopeBody(t *testing.T, env RequestEnvelope) string {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestParseRequestEnvelope(t *testing.T) {
	research, _ := json.Marshal(sampleResearch())
	cases := []struct {
		name    string
		body    string
		id      string
		wantErr bool
	}{
		{"envelope", `{"research_data_id":"rd-1","research":` + string(research) + `}`, "rd-1", false},
		{"envelope defaults id", `{"research":` + string(research) + `}`, "research-42", false},
		{"bare research output", string(research), "research-42", false},
		{"unrelated object", `{"hello":"world"}`, "", true},
		{"not json", `ideas please`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := parseRequestEnvelope(tc.body)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if env.ResearchDataID != tc.id {
				t.Fatalf("research id: %q", env.ResearchDataID)
			}
			if len(env.Research.Facts) != 2 {
				t.Fatalf("facts: %v", env.Research.Facts)
			}
		})
	}
}

func TestAgentHandleEvent(t *testing.T) {
	bus := &fakeBus{}
	gw := newQueue(cannedStep{object: batchOf(1e8, 2e8, 3e8)})
	ide, _ := newTestIdeator(gw, DefaultConfig(), WithNotifier(BusNotifier{Client: bus}))
	agent := NewAgent(AgentConfig{AgentID: "business-ideator", RenderHTML: true}, bus, ide, discardLogger())

	body := envelopeBody(t, RequestEnvelope{
		SessionID:      "s-bus",
		ResearchDataID: "rd-9",
		Research:       sampleResearch(),
		ConfigPatch:    &ConfigPatch{Ideation: &IdeationPatch{RequiredCount: ptr(3)}},
	})
	if err := agent.handleEvent(context.Background(), inbox(body)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(bus.acks) != 1 || bus.acks[0] != "m-1:accepted" {
		t.Fatalf("acks: %v", bus.acks)
	}
	if len(bus.replies) != 1 {
		t.Fatalf("replies: %d", len(bus.replies))
	}
	reply := bus.replies[0]
	if reply.To != "orchestrator" || reply.ConversationID != "conv-1" || reply.RequestID != "ideation-response-m-1" {
		t.Fatalf("reply routing: %+v", reply)
	}
	var resp ResponseEnvelope
	if err := json.Unmarshal([]byte(reply.Body), &resp); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if resp.SessionID != "s-bus" || resp.ResearchDataID != "rd-9" || len(resp.Output.Ideas) != 3 {
		t.Fatalf("response: session %q research %q ideas %d", resp.SessionID, resp.ResearchDataID, len(resp.Output.Ideas))
	}
	if !strings.Contains(resp.ReportHTML, "<table>") {
		t.Fatal("html report expected")
	}
	if ide.Config().Ideation.RequiredCount != 5 {
		t.Fatal("a per-request patch must not change the shared config")
	}
	types := bus.eventTypes()
	if types[0] != "progress" || types[len(types)-1] != "final" {
		t.Fatalf("events: %v", types)
	}
}

func TestAgentHandleEventFailure(t *testing.T) {
	bus := &fakeBus{}
	gw := newQueue(cannedStep{err: errors.New("Authentication failed")})
	ide, _ := newTestIdeator(gw, DefaultConfig(), WithNotifier(BusNotifier{Client: bus}))
	agent := NewAgent(AgentConfig{AgentID: "business-ideator"}, bus, ide, discardLogger())

	err := agent.handleEvent(context.Background(), inbox(envelopeBody(t, RequestEnvelope{Research: sampleResearch()})))
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(bus.replies) != 1 || bus.replies[0].RequestID != "ideation-error-m-1" {
		t.Fatalf("replies: %+v", bus.replies)
	}
	if bus.replies[0].Meta["status"] != "error" {
		t.Fatalf("meta: %v", bus.replies[0].Meta)
	}
	var errEvent *busEvent
	for i := range bus.events {
		if bus.events[i].Type == "error" {
			errEvent = &bus.events[i]
		}
	}
	if errEvent == nil {
		t.Fatal("notifier should emit an error event")
	}
	if errEvent.Meta["code"] != CodeLLMGenerationFailed || errEvent.Meta["retryable"] != false || errEvent.Meta["stage"] != "generate" {
		t.Fatalf("error event meta: %v", errEvent.Meta)
	}
}

func TestAgentHandleEventBadEnvelope(t *testing.T) {
	bus := &fakeBus{}
	gw := newQueue()
	ide, _ := newTestIdeator(gw, DefaultConfig())
	agent := NewAgent(AgentConfig{AgentID: "business-ideator"}, bus, ide, discardLogger())

	if err := agent.handleEvent(context.Background(), inbox(`{"hello":"world"}`)); err == nil {
		t.Fatal("expected parse error")
	}
	if len(gw.Calls()) != 0 {
		t.Fatal("no generation for a bad envelope")
	}
	if len(bus.replies) != 1 || !strings.HasPrefix(bus.replies[0].Body, "invalid request envelope") {
		t.Fatalf("replies: %+v", bus.replies)
	}
}

func TestAgentRunStopsOnCancel(t *testing.T) {
	bus := &fakeBus{}
	ide, _ := newTestIdeator(newQueue(), DefaultConfig())
	agent := NewAgent(AgentConfig{AgentID: "business-ideator", Heartbeat: time.Hour}, bus, ide, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := agent.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestAgentRunPollFailureHonoursCancel(t *testing.T) {
	bus := &fakeBus{pollErr: errors.New("bus unavailable")}
	ide, _ := newTestIdeator(newQueue(), DefaultConfig())
	agent := NewAgent(AgentConfig{AgentID: "business-ideator", Heartbeat: time.Hour, PollBackoff: time.Hour}, bus, ide, discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run kept sleeping after cancellation")
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.polls != 1 {
		t.Fatalf("polls: %d", bus.polls)
	}
}

func TestBusNotifierNeedsMessageID(t *testing.T) {
	bus := &fakeBus{}
	BusNotifier{Client: bus}.Notify(context.Background(), NewError(CodeTimeout, "slow"))
	if len(bus.events) != 0 {
		t.Fatal("no message id means nothing to attach the event to")
	}
	BusNotifier{Client: bus}.Notify(withMessageID(context.Background(), "m-7"), NewError(CodeTimeout, "slow"))
	if len(bus.events) != 1 || bus.events[0].MessageID != "m-7" {
		t.Fatalf("events: %+v", bus.events)
	}
}
