package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ExchangeRecord is an archived exchange.
type ExchangeRecord struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"created_at"`
	URL       string          `json:"url,omitempty"`
	Request   json.RawMessage `json:"request"`
	Response  json.RawMessage `json:"response"`
	IsError   bool            `json:"is_error"`
}

type ExchangeRepository interface {
	EnsureSchema(ctx context.Context) error
	InsertBatch(ctx context.Context, records []ExchangeRecord) error
	Recent(ctx context.Context, limit int) ([]ExchangeRecord, error)
}

const exchangeSchema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	request    JSONB,
	response   JSONB,
	is_error   BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS exchanges_created_at_idx ON exchanges (created_at DESC);`

type postgresExchangeRepository struct {
	db *sql.DB
}

func NewPostgresExchangeRepository(db *sql.DB) ExchangeRepository {
	return &postgresExchangeRepository{db: db}
}

func (r *postgresExchangeRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, exchangeSchema)
	return err
}

// InsertBatch writes records in one multi-row statement. Duplicate IDs are ignored.
func (r *postgresExchangeRepository) InsertBatch(ctx context.Context, records []ExchangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	query, args := insertStatement(records)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %d exchanges: %w", len(records), err)
	}
	return nil
}

func insertStatement(records []ExchangeRecord) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO exchanges (id, created_at, url, request, response, is_error) VALUES ")
	args := make([]any, 0, len(records)*6)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, rec.ID, rec.CreatedAt, rec.URL, jsonArg(rec.Request), jsonArg(rec.Response), rec.IsError)
	}
	sb.WriteString(" ON CONFLICT (id) DO NOTHING")
	return sb.String(), args
}

// jsonArg passes JSON as text so lib/pq sends it unchanged. Empty means NULL.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (r *postgresExchangeRepository) Recent(ctx context.Context, limit int) ([]ExchangeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, url, request, response, is_error FROM exchanges ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ExchangeRecord{}
	for rows.Next() {
		var (
			rec       ExchangeRecord
			req, resp []byte
		)
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.URL, &req, &resp, &rec.IsError); err != nil {
			return nil, err
		}
		rec.Request, rec.Response = nullableJSON(req), nullableJSON(resp)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) json.RawMessage {
	if b == nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
