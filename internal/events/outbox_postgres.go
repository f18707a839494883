package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the postgres driver for the outbox's database/sql handle.
	_ "github.com/lib/pq"
)

// OutboxSchema creates the notification outbox table.
const OutboxSchema = `
CREATE TABLE IF NOT EXISTS event_outbox (
	seq          BIGSERIAL PRIMARY KEY,
	event_id     TEXT        NOT NULL,
	payload      JSONB       NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);
`

// Outbox implements Sink using the transactional outbox pattern: Publish
// appends a row, and the outbox worker forwards pending rows to the broker.
// This keeps notifications durable across broker outages.
type Outbox struct {
	db *sql.DB
}

// OpenOutbox opens a database/sql handle on the postgres DSN and ensures the
// outbox table exists.
func OpenOutbox(ctx context.Context, dsn string) (*Outbox, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open outbox db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping outbox db: %w", err)
	}
	if _, err := db.ExecContext(ctx, OutboxSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure outbox schema: %w", err)
	}
	return &Outbox{db: db}, nil
}

// NewOutbox wraps an existing handle; used by tests.
func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

func (o *Outbox) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = o.db.ExecContext(ctx,
		`INSERT INTO event_outbox (event_id, payload) VALUES ($1, $2)`,
		event.ID, payload)
	if err != nil {
		return fmt.Errorf("append to outbox: %w", err)
	}
	return nil
}

type pendingRow struct {
	seq   int64
	event Event
}

func (o *Outbox) listPending(ctx context.Context, limit int) ([]pendingRow, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT seq, payload FROM event_outbox
		 WHERE published_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var pending []pendingRow
	for rows.Next() {
		var (
			seq     int64
			payload []byte
		)
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal pending event: %w", err)
		}
		pending = append(pending, pendingRow{seq: seq, event: event})
	}
	return pending, rows.Err()
}

func (o *Outbox) markPublished(ctx context.Context, seq int64, at time.Time) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE event_outbox SET published_at = $2 WHERE seq = $1`, seq, at)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}
