package service_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilscreen/internal/aggregate"
	"veilscreen/internal/correlation"
	"veilscreen/internal/events"
	"veilscreen/internal/oracle"
	"veilscreen/internal/policy"
	"veilscreen/internal/screening/models"
	"veilscreen/internal/screening/service"
	"veilscreen/internal/screening/store"
	dErrors "veilscreen/pkg/domain-errors"
)

// harness wires the full reveal pipeline against the in-process oracle
// simulator, so tests can play both sides of the protocol.
type harness struct {
	fake      *oracle.Fake
	service   *service.Service
	sink      *events.MemorySink
	publisher *events.Publisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := oracle.NewFake()
	sink := events.NewMemorySink()
	publisher := events.NewPublisher(sink)
	svc := service.New(service.Params{
		Logger:     slog.New(slog.DiscardHandler),
		Entries:    store.NewInMemoryStore(),
		Correlator: correlation.NewInMemoryStore(),
		Oracle:     fake,
		Aggregator: aggregate.New(fake),
		Publisher:  publisher,
	})
	return &harness{fake: fake, service: svc, sink: sink, publisher: publisher}
}

// submit encrypts the three values through the simulator and appends an entry.
func (h *harness) submit(t *testing.T, text, voice, category string) models.EntryID {
	t.Helper()
	id, err := h.service.Submit(context.Background(), policy.Unrestricted("clinic-1"),
		h.fake.EncryptBytes([]byte(text)),
		h.fake.EncryptBytes([]byte(voice)),
		h.fake.EncryptBytes([]byte(category)),
		"test-client",
	)
	require.NoError(t, err)
	return id
}

// reveal drives the async round trip: request, oracle delivery, callback.
func (h *harness) reveal(t *testing.T, id models.EntryID) {
	t.Helper()
	ctx := context.Background()
	requestID, err := h.service.RequestReveal(ctx, policy.Unrestricted("clinic-1"), id)
	require.NoError(t, err)
	cleartexts, proof, err := h.fake.Deliver(requestID)
	require.NoError(t, err)
	require.NoError(t, h.service.OnRevealCallback(ctx, requestID, cleartexts, proof))
}

// revealCount drives the counter round trip and returns the published count.
func (h *harness) revealCount(t *testing.T, category string) uint64 {
	t.Helper()
	ctx := context.Background()
	requestID, err := h.service.RequestCategoryCountReveal(ctx, policy.Unrestricted("ops"), category)
	require.NoError(t, err)
	cleartexts, proof, err := h.fake.Deliver(requestID)
	require.NoError(t, err)
	require.NoError(t, h.service.OnCategoryCountCallback(ctx, requestID, cleartexts, proof))

	published := h.sink.ByType(events.TypeCategoryCountRevealed)
	require.NotEmpty(t, published)
	last := published[len(published)-1]
	require.Equal(t, category, last.Category)
	require.NotNil(t, last.Count)
	return *last.Count
}

func TestRevealClassifiesRisk(t *testing.T) {
	ctx := context.Background()

	t.Run("combined length at or under threshold is low", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, strings.Repeat("t", 50), strings.Repeat("v", 40), "anxiety")
		h.reveal(t, id)

		entry, err := h.service.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRevealed, entry.Status)
		assert.Equal(t, "low", string(entry.RiskLevel))
		assert.Equal(t, "anxiety", entry.Category)
		require.NotNil(t, entry.RevealedAt)
	})

	t.Run("combined length over threshold is high", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, strings.Repeat("t", 60), strings.Repeat("v", 50), "anxiety")
		h.reveal(t, id)

		entry, err := h.service.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "high", string(entry.RiskLevel))
	})
}

func TestCategoryCounters(t *testing.T) {
	h := newHarness(t)

	first := h.submit(t, "short text", "short voice", "anxiety")
	second := h.submit(t, "other text", "other voice", "anxiety")
	h.reveal(t, first)
	h.reveal(t, second)

	assert.Equal(t, uint64(2), h.revealCount(t, "anxiety"))

	t.Run("counters are independent per category", func(t *testing.T) {
		third := h.submit(t, "a", "b", "sleep")
		h.reveal(t, third)

		assert.Equal(t, uint64(1), h.revealCount(t, "sleep"))
		assert.Equal(t, uint64(2), h.revealCount(t, "anxiety"))
	})

	t.Run("nonexistent category is rejected", func(t *testing.T) {
		_, err := h.service.RequestCategoryCountReveal(context.Background(), policy.Unrestricted("ops"), "never-revealed")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCategoryNotFound))
	})
}

func TestRevealProtocolEdges(t *testing.T) {
	ctx := context.Background()
	grant := policy.Unrestricted("clinic-1")

	t.Run("replayed callback is an unknown request", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		requestID, err := h.service.RequestReveal(ctx, grant, id)
		require.NoError(t, err)
		cleartexts, proof, err := h.fake.Deliver(requestID)
		require.NoError(t, err)
		require.NoError(t, h.service.OnRevealCallback(ctx, requestID, cleartexts, proof))

		err = h.service.OnRevealCallback(ctx, requestID, cleartexts, proof)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownRequest))
	})

	t.Run("tampered cleartexts fail proof verification", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		requestID, err := h.service.RequestReveal(ctx, grant, id)
		require.NoError(t, err)
		cleartexts, proof, err := h.fake.Deliver(requestID)
		require.NoError(t, err)
		cleartexts[0] = []byte("forged")

		err = h.service.OnRevealCallback(ctx, requestID, cleartexts, proof)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidProof))

		// The correlation survives an invalid callback; the genuine one
		// still lands.
		genuine, genuineProof, err := h.fake.Deliver(requestID)
		require.NoError(t, err)
		require.NoError(t, h.service.OnRevealCallback(ctx, requestID, genuine, genuineProof))
	})

	t.Run("second reveal of a revealed entry is rejected", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		h.reveal(t, id)

		_, err := h.service.RequestReveal(ctx, grant, id)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRevealed))
	})

	t.Run("second request while one is pending is rejected", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		_, err := h.service.RequestReveal(ctx, grant, id)
		require.NoError(t, err)

		_, err = h.service.RequestReveal(ctx, grant, id)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateRequest))
	})

	t.Run("misrouted callback reopens the entry", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		requestID, err := h.service.RequestReveal(ctx, grant, id)
		require.NoError(t, err)
		cleartexts, proof, err := h.fake.Deliver(requestID)
		require.NoError(t, err)

		// A genuine entry reveal delivered to the count endpoint consumes
		// the correlation without committing anything.
		err = h.service.OnCategoryCountCallback(ctx, requestID, cleartexts, proof)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownRequest))

		// The entry must be re-requestable, not wedged in reveal_requested.
		entry, err := h.service.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSubmitted, entry.Status)

		h.reveal(t, id)
		entry, err = h.service.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRevealed, entry.Status)
	})

	t.Run("expired request reopens the entry", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit(t, "text", "voice", "anxiety")
		requestID, err := h.service.RequestReveal(ctx, grant, id)
		require.NoError(t, err)

		n, err := h.service.ExpireStale(ctx, time.Now().Add(service.DefaultRevealTTL+time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		entry, err := h.service.GetEntry(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSubmitted, entry.Status)

		// The late callback for the expired request must be refused.
		cleartexts, proof, err := h.fake.Deliver(requestID)
		require.NoError(t, err)
		err = h.service.OnRevealCallback(ctx, requestID, cleartexts, proof)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownRequest))

		// And a fresh request must succeed.
		h.reveal(t, id)
	})
}

func TestNotificationsAcrossLifecycle(t *testing.T) {
	h := newHarness(t)
	id := h.submit(t, "text", "voice", "anxiety")
	h.reveal(t, id)
	h.revealCount(t, "anxiety")

	assert.Len(t, h.sink.ByType(events.TypeEntrySubmitted), 1)
	assert.Len(t, h.sink.ByType(events.TypeRevealRequested), 1)

	revealed := h.sink.ByType(events.TypeRevealed)
	require.Len(t, revealed, 1)
	assert.Equal(t, uint64(id), revealed[0].EntryID)
	assert.Equal(t, "low", revealed[0].RiskLevel)

	for _, event := range h.sink.All() {
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	}
}
