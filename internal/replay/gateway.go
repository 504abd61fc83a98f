package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joelkehle/ideator/internal/config"
	"github.com/joelkehle/ideator/internal/llm"
)

// Recorder forwards calls to next and stores every successful exchange.
type Recorder struct {
	next   llm.Gateway
	store  *Store
	now    func() time.Time
	logger *slog.Logger
}

func NewRecorder(next llm.Gateway, store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{next: next, store: store, now: time.Now, logger: logger}
}

func (r *Recorder) InvokeStructured(ctx context.Context, prompt string, schema llm.Schema, opts llm.Options) (llm.Response, error) {
	resp, err := r.next.InvokeStructured(ctx, prompt, schema, opts)
	if err != nil {
		return resp, err
	}
	id, err := r.store.Append(ctx, Exchange{
		PromptHash: PromptHash(schema.Name, prompt),
		SchemaName: schema.Name,
		Prompt:     prompt,
		Response:   string(resp.Object),
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		CreatedAt:  r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		r.logger.Warn("replay_record_failed", "schema", schema.Name, "err", err.Error())
		return resp, nil
	}
	r.logger.Debug("replay_recorded", "id", id, "schema", schema.Name)
	return resp, nil
}

// Player serves recorded exchanges. An exact prompt match is preferred;
// otherwise the next unused exchange for the same schema is returned, since
// prompts can embed generated ids.
type Player struct {
	mu        sync.Mutex
	exchanges []Exchange
	used      []bool
}

func NewPlayer(ctx context.Context, store *Store) (*Player, error) {
	all, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	return NewPlayerFromExchanges(all), nil
}

func NewPlayerFromExchanges(exchanges []Exchange) *Player {
	return &Player{exchanges: exchanges, used: make([]bool, len(exchanges))}
}

func (p *Player) InvokeStructured(ctx context.Context, prompt string, schema llm.Schema, _ llm.Options) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := PromptHash(schema.Name, prompt)
	idx := p.find(func(ex Exchange) bool { return ex.PromptHash == hash })
	if idx < 0 {
		idx = p.find(func(ex Exchange) bool { return ex.SchemaName == schema.Name })
	}
	if idx < 0 {
		return llm.Response{}, fmt.Errorf("replay: invalid request, no recorded exchange left for schema %q", schema.Name)
	}
	p.used[idx] = true
	ex := p.exchanges[idx]
	return llm.Response{Object: json.RawMessage(ex.Response), Model: ex.Model, TokensUsed: ex.TokensUsed}, nil
}

// Remaining counts exchanges not served yet.
func (p *Player) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, u := range p.used {
		if !u {
			n++
		}
	}
	return n
}

func (p *Player) find(match func(Exchange) bool) int {
	for i, ex := range p.exchanges {
		if !p.used[i] && match(ex) {
			return i
		}
	}
	return -1
}

// Wrap picks the gateway for a replay mode: the player in replay mode (upstream
// is never built), a recorder around upstream in record mode, or upstream
// itself. The returned func releases the store.
func Wrap(ctx context.Context, cfg config.Replay, upstream func() (llm.Gateway, error), logger *slog.Logger) (llm.Gateway, func(), error) {
	noop := func() {}
	if cfg.Mode == config.ReplayReplay {
		store, err := Open(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		player, err := NewPlayer(ctx, store)
		if err != nil {
			store.Close()
			return nil, noop, err
		}
		return player, func() { store.Close() }, nil
	}

	gw, err := upstream()
	if err != nil {
		return nil, noop, err
	}
	if cfg.Mode != config.ReplayRecord {
		return gw, noop, nil
	}
	store, err := Open(cfg.Path)
	if err != nil {
		return nil, noop, err
	}
	return NewRecorder(gw, store, logger), func() { store.Close() }, nil
}
