// Package correlation maps outstanding oracle request ids to the logical
// operation they belong to. Entry reveals and category-count reveals share
// one request-id space, so the mapped value is a tagged key: the two request
// families stay structurally disjoint and a numeric entry id can never
// collide with a category content hash.
package correlation

import (
	"context"
	"time"

	"veilscreen/internal/oracle"
)

// Kind tags which request family a correlation belongs to.
type Kind string

const (
	KindEntryReveal   Kind = "entry_reveal"
	KindCategoryCount Kind = "category_count"
)

// Key is the tagged correlation value stored per outstanding request id.
// Exactly one of EntryID or CategoryHash is meaningful, selected by Kind.
type Key struct {
	Kind         Kind   `json:"kind"`
	EntryID      uint64 `json:"entry_id,omitempty"`
	CategoryHash string `json:"category_hash,omitempty"`
}

// EntryReveal builds the key for an entry reveal request.
func EntryReveal(entryID uint64) Key {
	return Key{Kind: KindEntryReveal, EntryID: entryID}
}

// CategoryCount builds the key for a category counter reveal request.
func CategoryCount(hash string) Key {
	return Key{Kind: KindCategoryCount, CategoryHash: hash}
}

// Store owns the correlation table. Each registration carries a deadline so
// requests the oracle never answers do not accumulate forever.
//
// Register fails with sentinel.ErrConflict when the request id is already
// registered. Resolve is single-use: it removes the mapping, so a replayed
// callback fails with sentinel.ErrNotFound; a resolution after the deadline
// fails with sentinel.ErrExpired. Sweep removes every registration past its
// deadline and returns the expired keys so callers can roll back the state
// those requests were holding open.
type Store interface {
	Register(ctx context.Context, id oracle.RequestID, key Key, ttl time.Duration) error
	Resolve(ctx context.Context, id oracle.RequestID) (Key, error)
	Sweep(ctx context.Context, now time.Time) ([]Key, error)
}
