// Package busclient talks to the agent bus on behalf of one agent.
package busclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const signatureHeader = "X-Bus-Signature"

type InboxEvent struct {
	MessageID      string    `json:"message_id"`
	Type           string    `json:"type"`
	From           string    `json:"from"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Body           string    `json:"body"`
	Meta           any       `json:"meta,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReplyTo is the meta "reply_to" override, or From.
func (e InboxEvent) ReplyTo() string {
	if m, ok := e.Meta.(map[string]any); ok {
		if rt, _ := m["reply_to"].(string); strings.TrimSpace(rt) != "" {
			return strings.TrimSpace(rt)
		}
	}
	return e.From
}

// Reply is an outgoing message on the bus.
type Reply struct {
	To             string
	ConversationID string
	RequestID      string
	Type           string
	Body           string
	Meta           map[string]any
}

// StatusError is returned for any bus response with status >= 400.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// Client is bound to one agent identity; every call is signed with its secret.
type Client struct {
	baseURL string
	agentID string
	secret  string
	http    *http.Client
}

func New(baseURL, agentID, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agentID: agentID,
		secret:  secret,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) AgentID() string { return c.agentID }

func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, headers map[string]string) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	blob, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return blob, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(blob)}
	}
	return blob, nil
}

func (c *Client) postSigned(ctx context.Context, path string, payload any, extra map[string]string) ([]byte, error) {
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", path, err)
	}
	headers := map[string]string{signatureHeader: Sign(c.secret, blob)}
	for k, v := range extra {
		headers[k] = v
	}
	return c.do(ctx, http.MethodPost, path, blob, headers)
}

// Register announces the agent's capabilities; it doubles as the heartbeat.
func (c *Client) Register(ctx context.Context, capabilities []string, ttl time.Duration) error {
	body, err := json.Marshal(map[string]any{
		"agent_id":     c.agentID,
		"capabilities": capabilities,
		"mode":         "pull",
		"ttl":          int(ttl.Seconds()),
		"secret":       c.secret,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/v1/agents/register", body, nil)
	return err
}

// Poll long-polls the inbox from cursor and returns the next cursor.
func (c *Client) Poll(ctx context.Context, cursor int, wait time.Duration) ([]InboxEvent, int, error) {
	q := url.Values{}
	q.Set("agent_id", c.agentID)
	q.Set("cursor", strconv.Itoa(cursor))
	q.Set("wait", strconv.Itoa(int(wait.Seconds())))
	rawQuery := q.Encode()
	out, err := c.do(ctx, http.MethodGet, "/v1/inbox?"+rawQuery, nil, map[string]string{signatureHeader: Sign(c.secret, []byte(rawQuery))})
	if err != nil {
		return nil, cursor, err
	}
	var resp struct {
		Events []InboxEvent `json:"events"`
		Cursor string       `json:"cursor"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, cursor, fmt.Errorf("decode inbox: %w", err)
	}
	next, err := strconv.Atoi(strings.TrimSpace(resp.Cursor))
	if err != nil {
		next = cursor
	}
	return resp.Events, next, nil
}

func (c *Client) Ack(ctx context.Context, messageID, status, reason string) error {
	_, err := c.postSigned(ctx, "/v1/acks", map[string]any{
		"agent_id":   c.agentID,
		"message_id": messageID,
		"status":     status,
		"reason":     reason,
	}, nil)
	return err
}

// Event attaches a progress, error or final event to a message.
func (c *Client) Event(ctx context.Context, messageID, eventType, body string, meta map[string]any) error {
	_, err := c.postSigned(ctx, "/v1/events", map[string]any{
		"message_id": messageID,
		"type":       eventType,
		"body":       body,
		"meta":       meta,
	}, map[string]string{"X-Agent-ID": c.agentID})
	return err
}

// Send delivers r and returns the bus-assigned message id.
func (c *Client) Send(ctx context.Context, r Reply) (string, error) {
	out, err := c.postSigned(ctx, "/v1/messages", map[string]any{
		"to":              r.To,
		"from":            c.agentID,
		"conversation_id": r.ConversationID,
		"request_id":      r.RequestID,
		"type":            r.Type,
		"body":            r.Body,
		"meta":            r.Meta,
	}, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if strings.TrimSpace(resp.MessageID) == "" {
		return "", fmt.Errorf("missing message_id in response")
	}
	return resp.MessageID, nil
}
