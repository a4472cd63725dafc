package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratingsync/internal/syncer"
	"ratingsync/pkg/config"
	"ratingsync/pkg/ledger"
	"ratingsync/pkg/logger"
	"ratingsync/pkg/notify"
	"ratingsync/pkg/ranking"
	"ratingsync/pkg/scheduler"
	"ratingsync/pkg/server"
	"ratingsync/pkg/writer"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(os.Getenv("RATINGSYNC_CONFIG"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	l, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	l.Info("syncer service initializing", zap.String("env", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open ledger
	store, err := ledger.Open(ledger.Config{
		Path:       cfg.Ledger.Path,
		SyncWrites: cfg.Ledger.SyncWrites,
	}, l.Named("ledger"))
	if err != nil {
		l.Error("failed to open ledger", err)
		os.Exit(1)
	}
	defer store.Close()

	// 4. Ranking client
	var client ranking.Client = ranking.NewHTTPClient(ranking.Config{
		BaseURL: cfg.Ranking.BaseURL,
		Timeout: cfg.Ranking.Timeout,
	})
	if cfg.Ranking.CircuitBreaker {
		client = ranking.NewBreakerClient("ranking", client, ranking.DefaultBreakerSettings(), l)
	}

	sched := scheduler.New(client, l.Named("scheduler"), scheduler.WithFetchTimeout(cfg.Syncer.FetchTimeout))

	// 5. Optional match activity publisher
	publisher, err := newPublisher(cfg)
	if err != nil {
		l.Error("failed to create publisher", err)
		os.Exit(1)
	}
	defer publisher.Close()

	opts := []syncer.Option{
		syncer.WithPeriod(cfg.Syncer.Period),
		syncer.WithBudget(cfg.Syncer.Budget),
		syncer.WithOverlapPolicy(cfg.Syncer.OverlapPolicy),
		syncer.WithPublisher(publisher),
	}

	// 6. Optional PostgreSQL mirror
	if cfg.Postgres.URI != "" {
		pgWriter, err := writer.NewPostgresWriter(ctx, writer.PostgresConfig{
			URI:      cfg.Postgres.URI,
			MinConns: int32(cfg.Postgres.MinConns),
			MaxConns: int32(cfg.Postgres.MaxConns),
		}, l.Named("mirror"))
		if err != nil {
			l.Error("failed to connect to postgres", err)
			os.Exit(1)
		}
		defer pgWriter.Close()
		opts = append(opts, syncer.WithMirror(pgWriter))
	}

	// 7. Create service
	svc := syncer.NewService(l, store, sched, opts...)

	// 8. Start observability server
	obsServer := server.New(cfg.Server.Addr, l, store)
	go func() {
		if err := obsServer.Start(); err != nil {
			l.Error("observability server failed", err)
		}
	}()

	go runLedgerGC(ctx, store, cfg.Ledger.GCInterval, l)

	// 9. Start service
	l.Info("syncer service starting")
	if err := svc.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			l.Info("syncer service stopping")
		} else {
			l.Error("syncer service failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Syncer.FetchTimeout+5*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		l.Error("sync cycles did not finish", err)
	}
	obsServer.Shutdown(shutdownCtx)
}

func newPublisher(cfg *config.AppConfig) (notify.Publisher, error) {
	switch cfg.Notify.Backend {
	case config.NotifyKafka:
		return notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}), nil
	case config.NotifyRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return notify.NewRedisPublisher(client, cfg.Redis.Key), nil
	case config.NotifyNone:
		return notify.NopPublisher{}, nil
	}
	return nil, fmt.Errorf("unknown notify backend %q", cfg.Notify.Backend)
}

func runLedgerGC(ctx context.Context, store *ledger.Ledger, every time.Duration, l *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.RunGC(); err != nil {
				l.Warn("ledger gc failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
