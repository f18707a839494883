// Package aggregate maintains the running encrypted counter per risk
// category. Counters are homomorphic accumulators: they are incremented
// through the oracle arithmetic capability without ever being decrypted here.
package aggregate

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/sha3"

	"veilscreen/internal/oracle"
	"veilscreen/pkg/platform/sentinel"
)

// HashCategory computes the stable content hash used as a category's
// correlation identity.
func HashCategory(name string) string {
	sum := sha3.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// Aggregator owns the counters and the append-only name registry backing
// reverse lookup from content hash to name. A counter exists iff at least one
// reveal initialized it; counters only ever increase.
type Aggregator struct {
	mu       sync.RWMutex
	arith    oracle.Arithmetic
	counters map[string]oracle.Handle
	registry []string
}

func New(arith oracle.Arithmetic) *Aggregator {
	return &Aggregator{
		arith:    arith,
		counters: make(map[string]oracle.Handle),
	}
}

// Increment lazily initializes the category's encrypted zero counter, applies
// a homomorphic +1, and registers the name on first sight. Counter and
// registry commit together only after the arithmetic succeeds, so a failed
// increment leaves no trace: the counter exists iff it was initialized, and
// the registry holds each name exactly once. Category strings are accepted
// as-is; the only failures are oracle ones.
func (a *Aggregator) Increment(ctx context.Context, category string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	counter, ok := a.counters[category]
	if !ok {
		zero, err := a.arith.EncryptUint64(ctx, 0)
		if err != nil {
			return fmt.Errorf("initialize counter for %q: %w", category, err)
		}
		counter = zero
	}

	next, err := a.arith.AddUint64(ctx, counter, 1)
	if err != nil {
		return fmt.Errorf("increment counter for %q: %w", category, err)
	}
	if !ok {
		a.registry = append(a.registry, category)
	}
	a.counters[category] = next
	return nil
}

// CounterOf returns the encrypted accumulator handle for a category.
func (a *Aggregator) CounterOf(category string) (oracle.Handle, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	counter, ok := a.counters[category]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return counter, nil
}

// NameFromHash resolves a content hash back to its category name. The scan is
// linear over the registry and fails for hashes never registered.
func (a *Aggregator) NameFromHash(hash string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, name := range a.registry {
		if HashCategory(name) == hash {
			return name, nil
		}
	}
	return "", sentinel.ErrNotFound
}

// Categories returns a snapshot of the registered category names in
// registration order.
func (a *Aggregator) Categories() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.registry...)
}
