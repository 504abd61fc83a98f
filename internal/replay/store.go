// Package replay records LLM gateway exchanges to SQLite and serves them back
// so ideation runs can be reproduced offline.
package replay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	prompt_hash TEXT NOT NULL,
	schema_name TEXT NOT NULL DEFAULT '',
	prompt      TEXT NOT NULL,
	response    TEXT NOT NULL,
	model       TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS exchanges_prompt_hash ON exchanges (prompt_hash);
`

// Exchange is one recorded gateway call.
type Exchange struct {
	ID         int64  `db:"id"`
	PromptHash string `db:"prompt_hash"`
	SchemaName string `db:"schema_name"`
	Prompt     string `db:"prompt"`
	Response   string `db:"response"`
	Model      string `db:"model"`
	TokensUsed int    `db:"tokens_used"`
	CreatedAt  string `db:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Append(ctx context.Context, ex Exchange) (int64, error) {
	res, err := s.db.NamedExecContext(ctx, `INSERT INTO exchanges
		(prompt_hash, schema_name, prompt, response, model, tokens_used, created_at)
		VALUES (:prompt_hash, :schema_name, :prompt, :response, :model, :tokens_used, :created_at)`, ex)
	if err != nil {
		return 0, fmt.Errorf("insert exchange: %w", err)
	}
	return res.LastInsertId()
}

// All returns every exchange in recording order.
func (s *Store) All(ctx context.Context) ([]Exchange, error) {
	var out []Exchange
	if err := s.db.SelectContext(ctx, &out, "SELECT * FROM exchanges ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select exchanges: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM exchanges"); err != nil {
		return 0, err
	}
	return n, nil
}

// PromptHash keys an exchange by schema name and prompt text.
func PromptHash(schemaName, prompt string) string {
	sum := sha256.Sum256([]byte(schemaName + "\n" + prompt))
	return hex.EncodeToString(sum[:])
}
