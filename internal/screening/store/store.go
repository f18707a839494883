// Package store persists screening entries. Implementations are
// interface-driven so the service layer stays testable and persistence can be
// swapped without rewiring business code.
package store

import (
	"context"
	"time"

	"veilscreen/internal/classify"
	"veilscreen/internal/screening/models"
)

// Store owns the canonical set of submitted entries and their lifecycle.
//
// Create is a pure append and allocates the next sequential id. Reveal
// commits every plaintext field plus the risk level in one step, so no
// partially revealed entry is ever observable; it fails with
// sentinel.ErrInvalidState when the entry is already revealed and
// sentinel.ErrNotFound when it does not exist. MarkRevealRequested fails with
// sentinel.ErrConflict when a reveal is already pending and
// sentinel.ErrInvalidState when the entry is revealed. RevertRevealRequested
// undoes a pending mark after its correlation expired.
type Store interface {
	Create(ctx context.Context, entry models.Entry) (models.EntryID, error)
	FindByID(ctx context.Context, id models.EntryID) (models.Entry, error)
	MarkRevealRequested(ctx context.Context, id models.EntryID) error
	RevertRevealRequested(ctx context.Context, id models.EntryID) error
	Reveal(ctx context.Context, id models.EntryID, textFeature, voiceFeature, category string, risk classify.RiskLevel, revealedAt time.Time) error
}
