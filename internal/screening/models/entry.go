// Package models holds the screening ledger's domain records.
package models

import (
	"time"

	"veilscreen/internal/classify"
	"veilscreen/internal/oracle"
)

// EntryID is the sequential ledger identity. IDs start at 1, increase
// monotonically, and are never reused.
type EntryID uint64

// Status tracks the reveal lifecycle. Revealed is terminal; the only path
// back from RevealRequested is the expiry sweep, which makes the entry
// re-requestable again.
type Status string

const (
	StatusSubmitted       Status = "submitted"
	StatusRevealRequested Status = "reveal_requested"
	StatusRevealed        Status = "revealed"
)

// Entry is one encrypted screening record. The ciphertext handles are opaque
// and immutable once submitted. Plaintext fields are empty until the entry is
// revealed; after that they are write-once.
type Entry struct {
	ID             EntryID       `json:"id"`
	TextHandle     oracle.Handle `json:"text_handle"`
	VoiceHandle    oracle.Handle `json:"voice_handle"`
	CategoryHandle oracle.Handle `json:"category_handle"`
	SubmittedAt    time.Time     `json:"submitted_at"`
	Status         Status        `json:"status"`

	// Set exactly once by reveal.
	TextFeature  string             `json:"text_feature,omitempty"`
	VoiceFeature string             `json:"voice_feature,omitempty"`
	Category     string             `json:"category,omitempty"`
	RiskLevel    classify.RiskLevel `json:"risk_level,omitempty"`
	RevealedAt   *time.Time         `json:"revealed_at,omitempty"`
}

// Revealed reports whether the entry reached its terminal state.
func (e Entry) Revealed() bool {
	return e.Status == StatusRevealed
}
