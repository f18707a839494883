// Package service orchestrates the screening ledger: submissions, the
// asynchronous reveal protocol against the oracle, risk classification, and
// category aggregation. It keeps orchestration out of handlers and the domain
// stores thin.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"veilscreen/internal/aggregate"
	"veilscreen/internal/classify"
	"veilscreen/internal/correlation"
	"veilscreen/internal/events"
	"veilscreen/internal/oracle"
	"veilscreen/internal/policy"
	"veilscreen/internal/screening/metrics"
	"veilscreen/internal/screening/models"
	"veilscreen/internal/screening/store"
	dErrors "veilscreen/pkg/domain-errors"
	"veilscreen/pkg/platform/sentinel"
)

// DefaultRevealTTL bounds how long an outstanding reveal request may wait for
// its callback before the sweep abandons it.
const DefaultRevealTTL = 10 * time.Minute

// Publisher is the notification seam; tests swap in recording fakes.
type Publisher interface {
	Emit(ctx context.Context, event events.Event) error
}

// Service is the reveal processor. All mutating operations either fully apply
// their effect or apply none: capability checks, proof verification, and
// lookups run before any write.
type Service struct {
	logger     *slog.Logger
	entries    store.Store
	correlator correlation.Store
	oracle     oracle.Client
	classifier classify.Classifier
	aggregator *aggregate.Aggregator
	publisher  Publisher
	metrics    *metrics.Metrics
	revealTTL  time.Duration
	tracer     trace.Tracer
}

// Params collects the service dependencies. Classifier defaults to the
// length-sum heuristic and RevealTTL to DefaultRevealTTL.
type Params struct {
	Logger     *slog.Logger
	Entries    store.Store
	Correlator correlation.Store
	Oracle     oracle.Client
	Classifier classify.Classifier
	Aggregator *aggregate.Aggregator
	Publisher  Publisher
	Metrics    *metrics.Metrics
	RevealTTL  time.Duration
}

func New(p Params) *Service {
	if p.Classifier == nil {
		p.Classifier = classify.NewLengthSum()
	}
	if p.RevealTTL <= 0 {
		p.RevealTTL = DefaultRevealTTL
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return &Service{
		logger:     p.Logger,
		entries:    p.Entries,
		correlator: p.Correlator,
		oracle:     p.Oracle,
		classifier: p.Classifier,
		aggregator: p.Aggregator,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
		revealTTL:  p.RevealTTL,
		tracer:     otel.Tracer("veilscreen/screening"),
	}
}

// Submit appends an unrevealed entry to the ledger.
func (s *Service) Submit(ctx context.Context, grant policy.Capability, textHandle, voiceHandle, categoryHandle oracle.Handle, client string) (models.EntryID, error) {
	ctx, span := s.tracer.Start(ctx, "Submit")
	defer span.End()

	if !grant.Allows(policy.ActionSubmit) {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "capability does not allow submit")
	}
	if textHandle == "" || voiceHandle == "" || categoryHandle == "" {
		return 0, dErrors.New(dErrors.CodeBadRequest, "all three ciphertext handles are required")
	}

	now := time.Now()
	id, err := s.entries.Create(ctx, models.Entry{
		TextHandle:     textHandle,
		VoiceHandle:    voiceHandle,
		CategoryHandle: categoryHandle,
		SubmittedAt:    now,
	})
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "failed to store entry", err)
	}
	span.SetAttributes(attribute.Int64("entry.id", int64(id)))

	s.metrics.IncEntriesSubmitted()
	s.emit(ctx, events.Event{
		Type:      events.TypeEntrySubmitted,
		Timestamp: now,
		EntryID:   uint64(id),
		Client:    client,
	})
	s.logger.InfoContext(ctx, "entry submitted",
		"entry_id", uint64(id),
		"subject", grant.Subject,
	)
	return id, nil
}

// RequestReveal asks the oracle to decrypt an entry's three handles. The
// entry moves to reveal_requested until the callback lands or the request
// expires.
func (s *Service) RequestReveal(ctx context.Context, grant policy.Capability, id models.EntryID) (oracle.RequestID, error) {
	ctx, span := s.tracer.Start(ctx, "RequestReveal",
		trace.WithAttributes(attribute.Int64("entry.id", int64(id))))
	defer span.End()

	if !grant.Allows(policy.ActionRequestReveal) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "capability does not allow reveal requests")
	}

	entry, err := s.entries.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "entry not found")
	}
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to load entry", err)
	}
	if entry.Revealed() {
		return "", dErrors.New(dErrors.CodeAlreadyRevealed, "entry is already revealed")
	}

	// Ordered to match the callback decoder: text, voice, category.
	handles := []oracle.Handle{entry.TextHandle, entry.VoiceHandle, entry.CategoryHandle}
	requestID, err := s.oracle.RequestReveal(ctx, handles)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "oracle rejected reveal request", err)
	}

	if err := s.correlator.Register(ctx, requestID, correlation.EntryReveal(uint64(id)), s.revealTTL); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeDuplicateRequest, "request id already registered")
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to register correlation", err)
	}

	if err := s.entries.MarkRevealRequested(ctx, id); err != nil {
		// Roll the correlation back out so the dead registration cannot
		// swallow a future callback.
		_, _ = s.correlator.Resolve(ctx, requestID)
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return "", dErrors.New(dErrors.CodeDuplicateRequest, "a reveal is already pending for this entry")
		case errors.Is(err, sentinel.ErrInvalidState):
			return "", dErrors.New(dErrors.CodeAlreadyRevealed, "entry is already revealed")
		case errors.Is(err, sentinel.ErrNotFound):
			return "", dErrors.New(dErrors.CodeNotFound, "entry not found")
		default:
			return "", dErrors.Wrap(dErrors.CodeInternal, "failed to mark entry", err)
		}
	}

	s.metrics.IncRevealsRequested()
	s.emit(ctx, events.Event{
		Type:    events.TypeRevealRequested,
		EntryID: uint64(id),
	})
	s.logger.InfoContext(ctx, "reveal requested",
		"entry_id", uint64(id),
		"request_id", string(requestID),
		"subject", grant.Subject,
	)
	return requestID, nil
}

// OnRevealCallback handles the oracle's answer to an entry reveal. The proof
// is verified before any state is touched; the correlation is consumed on
// resolution so a replayed callback fails with UnknownRequest.
func (s *Service) OnRevealCallback(ctx context.Context, requestID oracle.RequestID, cleartexts oracle.Cleartexts, proof oracle.Proof) error {
	ctx, span := s.tracer.Start(ctx, "OnRevealCallback",
		trace.WithAttributes(attribute.String("request.id", string(requestID))))
	defer span.End()
	start := time.Now()
	defer func() {
		s.metrics.ObserveCallbackDuration(time.Since(start).Seconds())
	}()

	key, err := s.verifyAndResolve(ctx, requestID, cleartexts, proof)
	if err != nil {
		return err
	}
	if key.Kind != correlation.KindEntryReveal {
		s.metrics.IncRevealFailures("wrong_kind")
		return dErrors.New(dErrors.CodeUnknownRequest, "request id does not belong to an entry reveal")
	}
	id := models.EntryID(key.EntryID)

	if len(cleartexts) != 3 {
		// The correlation is consumed; reopen the entry so it stays
		// re-requestable.
		s.reopenEntry(ctx, id)
		s.metrics.IncRevealFailures("malformed_payload")
		return dErrors.New(dErrors.CodeMalformedPayload, "entry reveal must carry exactly three cleartexts")
	}
	textFeature := string(cleartexts[0])
	voiceFeature := string(cleartexts[1])
	category := string(cleartexts[2])

	riskLevel := s.classifier.Classify(textFeature, voiceFeature)

	if err := s.entries.Reveal(ctx, id, textFeature, voiceFeature, category, riskLevel, time.Now()); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncRevealFailures("already_revealed")
			return dErrors.New(dErrors.CodeAlreadyRevealed, "entry cannot be revealed")
		}
		s.reopenEntry(ctx, id)
		return dErrors.Wrap(dErrors.CodeInternal, "failed to commit reveal", err)
	}

	if err := s.aggregator.Increment(ctx, category); err != nil {
		// The reveal is committed; the counter is the only casualty. Surface
		// the failure so the caller can alert on it.
		return dErrors.Wrap(dErrors.CodeInternal, "failed to increment category counter", err)
	}

	s.metrics.IncRevealsCompleted(string(riskLevel))
	s.emit(ctx, events.Event{
		Type:      events.TypeRevealed,
		EntryID:   uint64(id),
		RiskLevel: string(riskLevel),
	})
	s.logger.InfoContext(ctx, "entry revealed",
		"entry_id", uint64(id),
		"risk_level", string(riskLevel),
	)
	return nil
}

// RequestCategoryCountReveal asks the oracle to decrypt a category's running
// counter. The category's content hash is the correlation identity.
func (s *Service) RequestCategoryCountReveal(ctx context.Context, grant policy.Capability, category string) (oracle.RequestID, error) {
	ctx, span := s.tracer.Start(ctx, "RequestCategoryCountReveal",
		trace.WithAttributes(attribute.String("category", category)))
	defer span.End()

	if !grant.Allows(policy.ActionRequestCountReveal) {
		return "", dErrors.New(dErrors.CodeUnauthorized, "capability does not allow count reveals")
	}

	counter, err := s.aggregator.CounterOf(category)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeCategoryNotFound, "no counter initialized for category")
	}
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to load counter", err)
	}

	requestID, err := s.oracle.RequestReveal(ctx, []oracle.Handle{counter})
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "oracle rejected count reveal request", err)
	}

	hash := aggregate.HashCategory(category)
	if err := s.correlator.Register(ctx, requestID, correlation.CategoryCount(hash), s.revealTTL); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.New(dErrors.CodeDuplicateRequest, "request id already registered")
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to register correlation", err)
	}

	s.logger.InfoContext(ctx, "category count reveal requested",
		"category", category,
		"request_id", string(requestID),
		"subject", grant.Subject,
	)
	return requestID, nil
}

// OnCategoryCountCallback handles the oracle's answer to a counter reveal and
// publishes the decrypted count.
func (s *Service) OnCategoryCountCallback(ctx context.Context, requestID oracle.RequestID, cleartexts oracle.Cleartexts, proof oracle.Proof) error {
	ctx, span := s.tracer.Start(ctx, "OnCategoryCountCallback",
		trace.WithAttributes(attribute.String("request.id", string(requestID))))
	defer span.End()

	key, err := s.verifyAndResolve(ctx, requestID, cleartexts, proof)
	if err != nil {
		return err
	}
	if key.Kind != correlation.KindCategoryCount {
		// A misrouted entry reveal still consumed its correlation; reopen
		// the entry it was holding in reveal_requested.
		if key.Kind == correlation.KindEntryReveal {
			s.reopenEntry(ctx, models.EntryID(key.EntryID))
		}
		s.metrics.IncRevealFailures("wrong_kind")
		return dErrors.New(dErrors.CodeUnknownRequest, "request id does not belong to a count reveal")
	}

	category, err := s.aggregator.NameFromHash(key.CategoryHash)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeCategoryNotFound, "category hash is not registered")
	}
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "failed to resolve category hash", err)
	}

	if len(cleartexts) != 1 {
		s.metrics.IncRevealFailures("malformed_payload")
		return dErrors.New(dErrors.CodeMalformedPayload, "count reveal must carry exactly one cleartext")
	}
	count, err := oracle.DecodeUint64(cleartexts[0])
	if err != nil {
		s.metrics.IncRevealFailures("malformed_payload")
		return dErrors.Wrap(dErrors.CodeMalformedPayload, "count cleartext is not a valid number", err)
	}

	s.metrics.IncCountReveals()
	s.metrics.SetCategoryCount(category, count)
	s.emit(ctx, events.Event{
		Type:     events.TypeCategoryCountRevealed,
		Category: category,
		Count:    &count,
	})
	s.logger.InfoContext(ctx, "category count revealed",
		"category", category,
		"count", count,
	)
	return nil
}

// ExpireStale abandons outstanding requests past their deadline and returns
// the affected entries to a re-requestable state. Returns the number of
// expired registrations.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.correlator.Sweep(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(dErrors.CodeInternal, "correlation sweep failed", err)
	}
	for _, key := range expired {
		if key.Kind != correlation.KindEntryReveal {
			continue
		}
		id := models.EntryID(key.EntryID)
		if err := s.entries.RevertRevealRequested(ctx, id); err != nil {
			// The entry may have been revealed by a callback racing the
			// sweep; that is not a failure of the sweep itself.
			s.logger.WarnContext(ctx, "could not revert expired entry",
				"entry_id", key.EntryID,
				"error", err,
			)
			continue
		}
		s.logger.WarnContext(ctx, "reveal request expired", "entry_id", key.EntryID)
	}
	if len(expired) > 0 {
		s.metrics.AddStaleExpired(len(expired))
	}
	return len(expired), nil
}

// GetEntry returns a snapshot of one ledger entry.
func (s *Service) GetEntry(ctx context.Context, id models.EntryID) (models.Entry, error) {
	entry, err := s.entries.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Entry{}, dErrors.New(dErrors.CodeNotFound, "entry not found")
	}
	if err != nil {
		return models.Entry{}, dErrors.Wrap(dErrors.CodeInternal, "failed to load entry", err)
	}
	return entry, nil
}

// GetCategoryCounter returns the encrypted accumulator handle for a category.
func (s *Service) GetCategoryCounter(ctx context.Context, category string) (oracle.Handle, error) {
	counter, err := s.aggregator.CounterOf(category)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeCategoryNotFound, "no counter initialized for category")
	}
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "failed to load counter", err)
	}
	return counter, nil
}

// verifyAndResolve runs the shared callback prologue: proof verification
// strictly before correlation resolution, so an invalid callback consumes
// nothing.
func (s *Service) verifyAndResolve(ctx context.Context, requestID oracle.RequestID, cleartexts oracle.Cleartexts, proof oracle.Proof) (correlation.Key, error) {
	valid, err := s.oracle.Verify(ctx, requestID, cleartexts, proof)
	if err != nil {
		return correlation.Key{}, dErrors.Wrap(dErrors.CodeInternal, "proof verification failed", err)
	}
	if !valid {
		s.metrics.IncRevealFailures("invalid_proof")
		return correlation.Key{}, dErrors.New(dErrors.CodeInvalidProof, "proof does not match request")
	}

	key, err := s.correlator.Resolve(ctx, requestID)
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
		s.metrics.IncRevealFailures("unknown_request")
		return correlation.Key{}, dErrors.New(dErrors.CodeUnknownRequest, "request id is not outstanding")
	}
	if err != nil {
		return correlation.Key{}, dErrors.Wrap(dErrors.CodeInternal, "failed to resolve correlation", err)
	}
	return key, nil
}

// reopenEntry returns an entry to the submitted state after its correlation
// was consumed without a committed reveal. Tolerates races the same way the
// expiry sweep does: the entry may have been reverted or revealed meanwhile.
func (s *Service) reopenEntry(ctx context.Context, id models.EntryID) {
	if err := s.entries.RevertRevealRequested(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "could not reopen entry after rejected callback",
			"entry_id", uint64(id),
			"error", err,
		)
		return
	}
	s.logger.WarnContext(ctx, "reopened entry after rejected callback", "entry_id", uint64(id))
}

func (s *Service) emit(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit notification",
			"type", string(event.Type),
			"error", err,
		)
	}
}
