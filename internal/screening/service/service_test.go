package service

//go:generate mockgen -destination=mocks/mocks.go -package=mocks veilscreen/internal/screening/service Publisher

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"veilscreen/internal/aggregate"
	"veilscreen/internal/correlation"
	"veilscreen/internal/events"
	"veilscreen/internal/oracle"
	"veilscreen/internal/policy"
	"veilscreen/internal/screening/models"
	"veilscreen/internal/screening/service/mocks"
	dErrors "veilscreen/pkg/domain-errors"
	"veilscreen/pkg/platform/sentinel"
)

type ServiceSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	mockEntries    *mocks.MockEntryStore
	mockCorrelator *mocks.MockCorrelationStore
	mockOracle     *mocks.MockOracleClient
	mockPublisher  *mocks.MockPublisher

	fakeOracle *oracle.Fake
	service    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockEntries = mocks.NewMockEntryStore(s.ctrl)
	s.mockCorrelator = mocks.NewMockCorrelationStore(s.ctrl)
	s.mockOracle = mocks.NewMockOracleClient(s.ctrl)
	s.mockPublisher = mocks.NewMockPublisher(s.ctrl)
	s.fakeOracle = oracle.NewFake()

	s.service = New(Params{
		Logger:     slog.New(slog.DiscardHandler),
		Entries:    s.mockEntries,
		Correlator: s.mockCorrelator,
		Oracle:     s.mockOracle,
		Aggregator: aggregate.New(s.fakeOracle),
		Publisher:  s.mockPublisher,
	})
}

func (s *ServiceSuite) TestSubmit() {
	ctx := context.Background()
	grant := policy.Unrestricted("clinic-1")

	s.Run("rejects capability without submit", func() {
		_, err := s.service.Submit(ctx, policy.Capability{Subject: "auditor"}, "ct_a", "ct_b", "ct_c", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects missing handles", func() {
		_, err := s.service.Submit(ctx, grant, "ct_a", "", "ct_c", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("stores entry and emits notification", func() {
		s.mockEntries.EXPECT().Create(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, entry models.Entry) (models.EntryID, error) {
				s.Equal(oracle.Handle("ct_a"), entry.TextHandle)
				s.Equal(oracle.Handle("ct_b"), entry.VoiceHandle)
				s.Equal(oracle.Handle("ct_c"), entry.CategoryHandle)
				return 7, nil
			})
		s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.Event) error {
				s.Equal(events.TypeEntrySubmitted, event.Type)
				s.Equal(uint64(7), event.EntryID)
				return nil
			})

		id, err := s.service.Submit(ctx, grant, "ct_a", "ct_b", "ct_c", "cli")
		s.Require().NoError(err)
		s.Equal(models.EntryID(7), id)
	})

	s.Run("wraps store failure as internal", func() {
		s.mockEntries.EXPECT().Create(gomock.Any(), gomock.Any()).Return(models.EntryID(0), sentinel.ErrUnavailable)

		_, err := s.service.Submit(ctx, grant, "ct_a", "ct_b", "ct_c", "")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRequestReveal() {
	ctx := context.Background()
	grant := policy.Unrestricted("clinic-1")
	entry := models.Entry{
		ID:             4,
		TextHandle:     "ct_t",
		VoiceHandle:    "ct_v",
		CategoryHandle: "ct_c",
		Status:         models.StatusSubmitted,
	}

	s.Run("rejects capability without request_reveal", func() {
		_, err := s.service.RequestReveal(ctx, policy.Capability{Subject: "clinic-1", Actions: []policy.Action{policy.ActionSubmit}}, 4)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown entry returns not found", func() {
		s.mockEntries.EXPECT().FindByID(gomock.Any(), models.EntryID(99)).Return(models.Entry{}, sentinel.ErrNotFound)

		_, err := s.service.RequestReveal(ctx, grant, 99)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("revealed entry returns already revealed", func() {
		revealed := entry
		revealed.Status = models.StatusRevealed
		s.mockEntries.EXPECT().FindByID(gomock.Any(), models.EntryID(4)).Return(revealed, nil)

		_, err := s.service.RequestReveal(ctx, grant, 4)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevealed))
	})

	s.Run("passes handles in text voice category order", func() {
		s.mockEntries.EXPECT().FindByID(gomock.Any(), models.EntryID(4)).Return(entry, nil)
		s.mockOracle.EXPECT().RequestReveal(gomock.Any(), []oracle.Handle{"ct_t", "ct_v", "ct_c"}).Return(oracle.RequestID("req-1"), nil)
		s.mockCorrelator.EXPECT().Register(gomock.Any(), oracle.RequestID("req-1"), correlation.EntryReveal(4), DefaultRevealTTL).Return(nil)
		s.mockEntries.EXPECT().MarkRevealRequested(gomock.Any(), models.EntryID(4)).Return(nil)
		s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		requestID, err := s.service.RequestReveal(ctx, grant, 4)
		s.Require().NoError(err)
		s.Equal(oracle.RequestID("req-1"), requestID)
	})

	s.Run("pending reveal returns duplicate request", func() {
		s.mockEntries.EXPECT().FindByID(gomock.Any(), models.EntryID(4)).Return(entry, nil)
		s.mockOracle.EXPECT().RequestReveal(gomock.Any(), gomock.Any()).Return(oracle.RequestID("req-2"), nil)
		s.mockCorrelator.EXPECT().Register(gomock.Any(), oracle.RequestID("req-2"), gomock.Any(), gomock.Any()).Return(nil)
		s.mockEntries.EXPECT().MarkRevealRequested(gomock.Any(), models.EntryID(4)).Return(sentinel.ErrConflict)
		// The dead registration must be consumed on rollback.
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-2")).Return(correlation.EntryReveal(4), nil)

		_, err := s.service.RequestReveal(ctx, grant, 4)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateRequest))
	})

	s.Run("oracle rejection leaves entry untouched", func() {
		s.mockEntries.EXPECT().FindByID(gomock.Any(), models.EntryID(4)).Return(entry, nil)
		s.mockOracle.EXPECT().RequestReveal(gomock.Any(), gomock.Any()).Return(oracle.RequestID(""), sentinel.ErrUnavailable)

		_, err := s.service.RequestReveal(ctx, grant, 4)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestOnRevealCallback() {
	ctx := context.Background()
	cleartexts := oracle.Cleartexts{[]byte("calm tone"), []byte("steady voice"), []byte("anxiety")}
	proof := oracle.Proof("sig")

	s.Run("invalid proof consumes nothing", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), oracle.RequestID("req-1"), cleartexts, proof).Return(false, nil)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidProof))
	})

	s.Run("unknown request id", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.Key{}, sentinel.ErrNotFound)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownRequest))
	})

	s.Run("expired request id", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.Key{}, sentinel.ErrExpired)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownRequest))
	})

	s.Run("count reveal correlation is the wrong kind", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.CategoryCount("abc"), nil)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownRequest))
	})

	s.Run("wrong cleartext arity is malformed and reopens the entry", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.EntryReveal(4), nil)
		s.mockEntries.EXPECT().RevertRevealRequested(gomock.Any(), models.EntryID(4)).Return(nil)

		err := s.service.OnRevealCallback(ctx, "req-1", oracle.Cleartexts{[]byte("only-one")}, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedPayload))
	})

	s.Run("commit failure reopens the entry", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.EntryReveal(4), nil)
		s.mockEntries.EXPECT().
			Reveal(gomock.Any(), models.EntryID(4), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(sentinel.ErrUnavailable)
		s.mockEntries.EXPECT().RevertRevealRequested(gomock.Any(), models.EntryID(4)).Return(nil)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("commits reveal classifies and increments counter", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.EntryReveal(4), nil)
		s.mockEntries.EXPECT().
			Reveal(gomock.Any(), models.EntryID(4), "calm tone", "steady voice", "anxiety", gomock.Any(), gomock.Any()).
			Return(nil)
		s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.Event) error {
				s.Equal(events.TypeRevealed, event.Type)
				s.Equal(uint64(4), event.EntryID)
				s.Equal("low", event.RiskLevel)
				return nil
			})

		s.Require().NoError(s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof))

		counter, err := s.service.GetCategoryCounter(ctx, "anxiety")
		s.Require().NoError(err)
		s.NotEmpty(counter)
	})

	s.Run("callback for an already revealed entry", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-1")).Return(correlation.EntryReveal(4), nil)
		s.mockEntries.EXPECT().
			Reveal(gomock.Any(), models.EntryID(4), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(sentinel.ErrInvalidState)

		err := s.service.OnRevealCallback(ctx, "req-1", cleartexts, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyRevealed))
	})
}

func (s *ServiceSuite) TestRequestCategoryCountReveal() {
	ctx := context.Background()
	grant := policy.Unrestricted("ops")

	s.Run("rejects capability without count reveal", func() {
		_, err := s.service.RequestCategoryCountReveal(ctx, policy.Capability{Subject: "clinic-1"}, "anxiety")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown category", func() {
		_, err := s.service.RequestCategoryCountReveal(ctx, grant, "never-seen")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCategoryNotFound))
	})

	s.Run("registers the category hash", func() {
		s.Require().NoError(s.service.aggregator.Increment(ctx, "anxiety"))
		counter, err := s.service.aggregator.CounterOf("anxiety")
		s.Require().NoError(err)

		s.mockOracle.EXPECT().RequestReveal(gomock.Any(), []oracle.Handle{counter}).Return(oracle.RequestID("req-c"), nil)
		s.mockCorrelator.EXPECT().
			Register(gomock.Any(), oracle.RequestID("req-c"), correlation.CategoryCount(aggregate.HashCategory("anxiety")), DefaultRevealTTL).
			Return(nil)

		requestID, err := s.service.RequestCategoryCountReveal(ctx, grant, "anxiety")
		s.Require().NoError(err)
		s.Equal(oracle.RequestID("req-c"), requestID)
	})
}

func (s *ServiceSuite) TestOnCategoryCountCallback() {
	ctx := context.Background()
	proof := oracle.Proof("sig")

	s.Run("entry reveal correlation is the wrong kind and reopens the entry", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-c")).Return(correlation.EntryReveal(4), nil)
		s.mockEntries.EXPECT().RevertRevealRequested(gomock.Any(), models.EntryID(4)).Return(nil)

		err := s.service.OnCategoryCountCallback(ctx, "req-c", oracle.Cleartexts{oracle.EncodeUint64(2)}, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownRequest))
	})

	s.Run("unregistered hash", func() {
		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-c")).Return(correlation.CategoryCount("deadbeef"), nil)

		err := s.service.OnCategoryCountCallback(ctx, "req-c", oracle.Cleartexts{oracle.EncodeUint64(2)}, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCategoryNotFound))
	})

	s.Run("publishes the decoded count", func() {
		s.Require().NoError(s.service.aggregator.Increment(ctx, "anxiety"))
		hash := aggregate.HashCategory("anxiety")

		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-c")).Return(correlation.CategoryCount(hash), nil)
		s.mockPublisher.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, event events.Event) error {
				s.Equal(events.TypeCategoryCountRevealed, event.Type)
				s.Equal("anxiety", event.Category)
				s.Require().NotNil(event.Count)
				s.Equal(uint64(2), *event.Count)
				return nil
			})

		err := s.service.OnCategoryCountCallback(ctx, "req-c", oracle.Cleartexts{oracle.EncodeUint64(2)}, proof)
		s.Require().NoError(err)
	})

	s.Run("short cleartext is malformed", func() {
		s.Require().NoError(s.service.aggregator.Increment(ctx, "sleep"))
		hash := aggregate.HashCategory("sleep")

		s.mockOracle.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
		s.mockCorrelator.EXPECT().Resolve(gomock.Any(), oracle.RequestID("req-c")).Return(correlation.CategoryCount(hash), nil)

		err := s.service.OnCategoryCountCallback(ctx, "req-c", oracle.Cleartexts{[]byte{0x01}}, proof)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeMalformedPayload))
	})
}

func (s *ServiceSuite) TestExpireStale() {
	ctx := context.Background()
	now := time.Now()

	s.Run("reverts entries held open by expired requests", func() {
		s.mockCorrelator.EXPECT().Sweep(gomock.Any(), now).Return([]correlation.Key{
			correlation.EntryReveal(3),
			correlation.CategoryCount("abc"),
		}, nil)
		s.mockEntries.EXPECT().RevertRevealRequested(gomock.Any(), models.EntryID(3)).Return(nil)

		n, err := s.service.ExpireStale(ctx, now)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("a revert racing a reveal is tolerated", func() {
		s.mockCorrelator.EXPECT().Sweep(gomock.Any(), now).Return([]correlation.Key{correlation.EntryReveal(3)}, nil)
		s.mockEntries.EXPECT().RevertRevealRequested(gomock.Any(), models.EntryID(3)).Return(sentinel.ErrInvalidState)

		n, err := s.service.ExpireStale(ctx, now)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("sweep failure surfaces as internal", func() {
		s.mockCorrelator.EXPECT().Sweep(gomock.Any(), now).Return(nil, sentinel.ErrUnavailable)

		_, err := s.service.ExpireStale(ctx, now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
