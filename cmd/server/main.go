package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"veilscreen/internal/aggregate"
	"veilscreen/internal/correlation"
	"veilscreen/internal/events"
	"veilscreen/internal/oracle"
	"veilscreen/internal/platform/config"
	"veilscreen/internal/platform/httpserver"
	"veilscreen/internal/platform/logger"
	platformmetrics "veilscreen/internal/platform/metrics"
	platformredis "veilscreen/internal/platform/redis"
	"veilscreen/internal/screening/handler"
	screeningmetrics "veilscreen/internal/screening/metrics"
	"veilscreen/internal/screening/service"
	"veilscreen/internal/screening/store"
	"veilscreen/internal/token"
)

// main wires dependencies and runs the HTTP server, the expiry sweep and the
// outbox worker under one lifecycle. Business logic lives in internal
// packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	// Oracle: real service when configured, in-process simulator otherwise.
	var (
		oracleClient oracle.Client
		oracleArith  oracle.Arithmetic
	)
	if cfg.OracleURL != "" {
		httpOracle := oracle.NewHTTPClient(cfg.OracleURL)
		oracleClient, oracleArith = httpOracle, httpOracle
		log.Info("using external oracle", "url", cfg.OracleURL)
	} else {
		fake := oracle.NewFake()
		oracleClient, oracleArith = fake, fake
		log.Warn("no oracle configured, running the in-process simulator")
	}

	// Entry store: postgres when a DSN is configured, in-memory otherwise.
	var entries store.Store = store.NewInMemoryStore()
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		entries = pg
		log.Info("using postgres entry store")
	}

	// Correlation table: redis when configured, in-memory otherwise.
	var correlator correlation.Store = correlation.NewInMemoryStore()
	rdb, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		correlator = correlation.NewRedisStore(rdb.Client)
		log.Info("using redis correlation store")
	}

	// Notifications: Kafka behind a durable outbox when both are configured,
	// Kafka direct when only the broker is, in-memory otherwise.
	var sink events.Sink = events.NewMemorySink()
	var worker *events.OutboxWorker
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafka.Close()
		sink = kafka
		if cfg.PostgresDSN != "" {
			outbox, err := events.OpenOutbox(ctx, cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer outbox.Close()
			worker = events.NewOutboxWorker(outbox, kafka, log)
			sink = outbox
		}
		log.Info("publishing notifications to kafka", "topic", cfg.KafkaTopic)
	}
	publisher := events.NewPublisher(sink, events.WithAsyncBuffer(256))
	defer publisher.Close()

	httpMetrics := platformmetrics.New()
	svc := service.New(service.Params{
		Logger:     log,
		Entries:    entries,
		Correlator: correlator,
		Oracle:     oracleClient,
		Aggregator: aggregate.New(oracleArith),
		Publisher:  publisher,
		Metrics:    screeningmetrics.New(),
		RevealTTL:  cfg.RevealTTL,
	})

	tokens := token.NewService(cfg.JWTSigningKey, "veilscreen")
	router := chi.NewRouter()
	handler.New(svc, log, httpMetrics, tokens).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting veilscreen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Expiry sweep: abandoned reveal requests must not hold entries in
	// reveal_requested forever.
	group.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := svc.ExpireStale(ctx, time.Now())
				if err != nil {
					log.ErrorContext(ctx, "expiry sweep failed", "error", err)
					continue
				}
				if n > 0 {
					log.InfoContext(ctx, "expired stale reveal requests", "count", n)
				}
			}
		}
	})

	if worker != nil {
		group.Go(func() error {
			return worker.Run(ctx)
		})
	}

	return group.Wait()
}
