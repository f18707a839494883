package events

import (
	"context"
	"log/slog"
	"time"
)

// OutboxWorker drains pending outbox rows to a downstream sink (Kafka in
// production). Rows are marked published only after the sink accepts them, so
// delivery is at-least-once.
type OutboxWorker struct {
	outbox    *Outbox
	sink      Sink
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewOutboxWorker(outbox *Outbox, sink Sink, logger *slog.Logger) *OutboxWorker {
	return &OutboxWorker{
		outbox:    outbox,
		sink:      sink,
		logger:    logger,
		interval:  time.Second,
		batchSize: 100,
	}
}

// Run polls until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *OutboxWorker) drainOnce(ctx context.Context) error {
	pending, err := w.outbox.listPending(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, row := range pending {
		if err := w.sink.Publish(ctx, row.event); err != nil {
			// Leave the row pending; the next tick retries.
			return err
		}
		if err := w.outbox.markPublished(ctx, row.seq, time.Now()); err != nil {
			return err
		}
	}
	return nil
}
