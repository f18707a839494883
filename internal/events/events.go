// Package events defines the ledger's observable notifications and their
// delivery machinery. Consumers expect at-least-once semantics; events are
// facts about state transitions, never commands.
package events

import (
	"context"
	"time"
)

// Type names a notification kind.
type Type string

const (
	TypeEntrySubmitted        Type = "entry_submitted"
	TypeRevealRequested       Type = "reveal_requested"
	TypeRevealed              Type = "revealed"
	TypeCategoryCountRevealed Type = "category_count_revealed"
)

// Event is emitted from domain logic to capture ledger transitions. Keep it
// transport-agnostic so sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	EntryID   uint64  `json:"entry_id,omitempty"`
	RiskLevel string  `json:"risk_level,omitempty"`
	Category  string  `json:"category,omitempty"`
	Count     *uint64 `json:"count,omitempty"`

	// Client describes the submitting client (parsed user agent), when known.
	Client string `json:"client,omitempty"`
}

// Sink delivers events somewhere durable or observable.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
