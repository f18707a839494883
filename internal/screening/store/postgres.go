package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"veilscreen/internal/classify"
	"veilscreen/internal/screening/models"
	"veilscreen/pkg/platform/sentinel"
)

// Schema creates the ledger table. BIGSERIAL gives the sequential, never
// reused entry ids the ledger requires.
const Schema = `
CREATE TABLE IF NOT EXISTS screening_entries (
	id              BIGSERIAL PRIMARY KEY,
	text_handle     TEXT        NOT NULL,
	voice_handle    TEXT        NOT NULL,
	category_handle TEXT        NOT NULL,
	status          TEXT        NOT NULL DEFAULT 'submitted',
	submitted_at    TIMESTAMPTZ NOT NULL,
	text_feature    TEXT,
	voice_feature   TEXT,
	category        TEXT,
	risk_level      TEXT,
	revealed_at     TIMESTAMPTZ
);
`

// PostgresStore persists the ledger in PostgreSQL for multi-instance
// deployments. Lifecycle transitions are single conditional UPDATEs, so state
// checks and writes are one atomic step.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the ledger table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure screening schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, entry models.Entry) (models.EntryID, error) {
	var id uint64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO screening_entries (text_handle, voice_handle, category_handle, status, submitted_at)
		 VALUES ($1, $2, $3, 'submitted', $4)
		 RETURNING id`,
		string(entry.TextHandle), string(entry.VoiceHandle), string(entry.CategoryHandle), entry.SubmittedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create entry: %w", err)
	}
	return models.EntryID(id), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id models.EntryID) (models.Entry, error) {
	var (
		entry        models.Entry
		rawID        uint64
		textFeature  *string
		voiceFeature *string
		category     *string
		riskLevel    *string
		revealedAt   *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, text_handle, voice_handle, category_handle, status, submitted_at,
		        text_feature, voice_feature, category, risk_level, revealed_at
		 FROM screening_entries WHERE id = $1`, uint64(id),
	).Scan(&rawID, &entry.TextHandle, &entry.VoiceHandle, &entry.CategoryHandle, &entry.Status,
		&entry.SubmittedAt, &textFeature, &voiceFeature, &category, &riskLevel, &revealedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("find entry: %w", err)
	}
	entry.ID = models.EntryID(rawID)
	if textFeature != nil {
		entry.TextFeature = *textFeature
	}
	if voiceFeature != nil {
		entry.VoiceFeature = *voiceFeature
	}
	if category != nil {
		entry.Category = *category
	}
	if riskLevel != nil {
		entry.RiskLevel = classify.RiskLevel(*riskLevel)
	}
	entry.RevealedAt = revealedAt
	return entry, nil
}

func (s *PostgresStore) MarkRevealRequested(ctx context.Context, id models.EntryID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_entries SET status = 'reveal_requested'
		 WHERE id = $1 AND status = 'submitted'`, uint64(id))
	if err != nil {
		return fmt.Errorf("mark reveal requested: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.transitionFailure(ctx, id, models.StatusSubmitted)
}

func (s *PostgresStore) RevertRevealRequested(ctx context.Context, id models.EntryID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_entries SET status = 'submitted'
		 WHERE id = $1 AND status = 'reveal_requested'`, uint64(id))
	if err != nil {
		return fmt.Errorf("revert reveal requested: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.transitionFailure(ctx, id, models.StatusRevealRequested)
}

func (s *PostgresStore) Reveal(ctx context.Context, id models.EntryID, textFeature, voiceFeature, category string, risk classify.RiskLevel, revealedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screening_entries
		 SET status = 'revealed', text_feature = $2, voice_feature = $3,
		     category = $4, risk_level = $5, revealed_at = $6
		 WHERE id = $1 AND status <> 'revealed'`,
		uint64(id), textFeature, voiceFeature, category, string(risk), revealedAt)
	if err != nil {
		return fmt.Errorf("reveal entry: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Zero rows: either missing or already revealed.
	var status models.Status
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM screening_entries WHERE id = $1`, uint64(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reveal entry status check: %w", err)
	}
	return sentinel.ErrInvalidState
}

// transitionFailure classifies a zero-row conditional UPDATE by reading the
// current status.
func (s *PostgresStore) transitionFailure(ctx context.Context, id models.EntryID, wanted models.Status) error {
	var status models.Status
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM screening_entries WHERE id = $1`, uint64(id)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("entry status check: %w", err)
	}
	switch {
	case status == models.StatusRevealed:
		return sentinel.ErrInvalidState
	case wanted == models.StatusSubmitted && status == models.StatusRevealRequested:
		return sentinel.ErrConflict
	default:
		return sentinel.ErrInvalidState
	}
}
