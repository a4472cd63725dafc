package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ratingsync/pkg/config"
	"ratingsync/pkg/ledger"
	"ratingsync/pkg/logger"
	"ratingsync/pkg/metrics"
	"ratingsync/pkg/notify"
	"ratingsync/pkg/player"
	"ratingsync/pkg/scheduler"
	"ratingsync/pkg/writer"

	"go.uber.org/zap"
)

// Store is the slice of the ledger a sync cycle touches
type Store interface {
	ListAllMatchCounts(ctx context.Context) ([]ledger.MatchCountEntry, error)
	BatchSetPlayerRecords(ctx context.Context, entries []ledger.RecordEntry) error
	BatchSetMatchCounts(ctx context.Context, entries []ledger.MatchCountEntry) error
	GetStatus(ctx context.Context, id player.ID) (player.Status, error)
	BatchSetStatus(ctx context.Context, entries []ledger.StatusEntry) error
	ListFollowers(ctx context.Context, followee player.ID) ([]player.ID, error)
}

// Fetcher fans out ranking lookups for a population
type Fetcher interface {
	FetchAll(ctx context.Context, ids []player.ID, budget time.Duration) scheduler.Result
}

// Service runs sync cycles on a fixed period
type Service struct {
	logger  *logger.Logger
	store   Store
	fetcher Fetcher

	period    time.Duration
	budget    time.Duration
	overlap   string
	publisher notify.Publisher
	mirror    writer.StatsWriter
	now       func() time.Time

	wg      sync.WaitGroup
	running atomic.Int32
	cycles  atomic.Uint64
}

// Option configures a Service
type Option func(*Service)

// WithPeriod sets the outer tick
func WithPeriod(d time.Duration) Option {
	return func(s *Service) { s.period = d }
}

// WithBudget sets the time over which one cycle spreads its fetch launches
func WithBudget(d time.Duration) Option {
	return func(s *Service) { s.budget = d }
}

// WithOverlapPolicy chooses what a tick does while an earlier cycle is
// still running: config.OverlapAllow starts another, config.OverlapSkip drops it.
func WithOverlapPolicy(policy string) Option {
	return func(s *Service) { s.overlap = policy }
}

// WithPublisher sets where match activity is sent
func WithPublisher(p notify.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMirror upserts every committed batch into an external store
func WithMirror(w writer.StatsWriter) Option {
	return func(s *Service) { s.mirror = w }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new sync service
func NewService(l *logger.Logger, store Store, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		logger:    l,
		store:     store,
		fetcher:   fetcher,
		period:    120 * time.Second,
		budget:    60 * time.Second,
		overlap:   config.OverlapAllow,
		publisher: notify.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a cycle immediately and then once per period until ctx is
// done. Cycles run in their own goroutines, so a slow cycle never delays the
// next tick. Start returns once ctx is done; in-flight cycles are awaited
// by Shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting sync service",
		zap.Duration("period", s.period),
		zap.Duration("budget", s.budget),
		zap.String("overlap_policy", s.overlap))

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		s.launch(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) launch(ctx context.Context) {
	if s.overlap == config.OverlapSkip && s.running.Load() > 0 {
		metrics.SyncCyclesSkippedTotal.Inc()
		s.logger.Warn("previous cycle still running, skipping tick")
		return
	}

	s.running.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)

		if err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sync cycle failed", err)
		}
	}()
}

// RunCycle performs one full sync: read the tracked population, fetch every
// player, then commit records and match counts in one batch each.
func (s *Service) RunCycle(ctx context.Context) error {
	cycle := s.cycles.Add(1)
	l := s.logger.With(zap.Uint64("cycle", cycle))

	metrics.SyncCyclesInFlight.Inc()
	defer metrics.SyncCyclesInFlight.Dec()
	start := time.Now()
	defer func() {
		metrics.SyncCycleDuration.Observe(time.Since(start).Seconds())
		metrics.SyncCyclesTotal.Inc()
	}()

	tracked, err := s.store.ListAllMatchCounts(ctx)
	if err != nil {
		return fmt.Errorf("list tracked players: %w", err)
	}
	metrics.TrackedPlayers.Set(float64(len(tracked)))
	if len(tracked) == 0 {
		l.Debug("no tracked players")
		return nil
	}

	previous := make(map[player.ID]uint64, len(tracked))
	ids := make([]player.ID, len(tracked))
	for i, e := range tracked {
		ids[i] = e.ID
		previous[e.ID] = e.Count
	}

	res := s.fetcher.FetchAll(ctx, ids, s.budget)
	syncedAt := s.now()

	l.Info("fetch complete",
		zap.Int("tracked", len(ids)),
		zap.Int("launched", res.Launched),
		zap.Int("succeeded", len(res.Records)),
		zap.Int("failed", len(res.Failures)))

	if len(res.Records) == 0 {
		s.recordStatus(ctx, l, res, nil, syncedAt)
		return nil
	}

	records := make([]ledger.RecordEntry, len(res.Records))
	counts := make([]ledger.MatchCountEntry, len(res.Records))
	for i, r := range res.Records {
		records[i] = ledger.RecordEntry{ID: r.ID, Record: r.Record}
		counts[i] = ledger.MatchCountEntry{ID: r.ID, Count: r.Record.TotalMatches()}
	}

	commitErr := s.commit(ctx, records, counts)
	s.recordStatus(ctx, l, res, commitErr, syncedAt)
	if commitErr != nil {
		return commitErr
	}

	s.publishActivity(ctx, l, counts, previous, records, syncedAt)
	s.mirrorStats(ctx, l, res.Records, syncedAt)

	return nil
}

// commit writes records before counts, so a stored count always has the
// record it was derived from.
func (s *Service) commit(ctx context.Context, records []ledger.RecordEntry, counts []ledger.MatchCountEntry) error {
	if err := s.store.BatchSetPlayerRecords(ctx, records); err != nil {
		return fmt.Errorf("commit player records: %w", err)
	}
	if err := s.store.BatchSetMatchCounts(ctx, counts); err != nil {
		return fmt.Errorf("commit match counts: %w", err)
	}
	return nil
}

// recordStatus updates per-player bookkeeping. When commitErr is set the
// fetched records never reached the ledger and count as failures. Failures
// caused by cancellation are not the player's fault and leave its status alone.
func (s *Service) recordStatus(ctx context.Context, l *logger.Logger, res scheduler.Result, commitErr error, at time.Time) {
	ctx = context.WithoutCancel(ctx)
	ts := at.Unix()
	entries := make([]ledger.StatusEntry, 0, len(res.Records)+len(res.Failures))

	failed := func(id player.ID, cause error) {
		if errors.Is(cause, context.Canceled) {
			return
		}
		prev, err := s.store.GetStatus(ctx, id)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			l.Warn("failed to read sync status", zap.Error(err), zap.Stringer("player_id", id))
		}
		entries = append(entries, ledger.StatusEntry{
			ID: id,
			Status: player.Status{
				LastAttempt: ts,
				LastSuccess: prev.LastSuccess,
				LastError:   cause.Error(),
				Failures:    prev.Failures + 1,
			},
		})
	}

	for _, r := range res.Records {
		if commitErr != nil {
			failed(r.ID, commitErr)
			continue
		}
		entries = append(entries, ledger.StatusEntry{
			ID:     r.ID,
			Status: player.Status{LastAttempt: ts, LastSuccess: ts},
		})
	}
	for _, f := range res.Failures {
		failed(f.ID, f.Err)
	}

	if err := s.store.BatchSetStatus(ctx, entries); err != nil {
		l.Error("failed to record sync status", err)
	}
}

func (s *Service) publishActivity(
	ctx context.Context,
	l *logger.Logger,
	counts []ledger.MatchCountEntry,
	previous map[player.ID]uint64,
	records []ledger.RecordEntry,
	at time.Time,
) {
	var events []notify.MatchActivity
	for i, c := range counts {
		prev := previous[c.ID]
		if c.Count <= prev {
			continue
		}

		followers, err := s.store.ListFollowers(ctx, c.ID)
		if err != nil {
			l.Warn("failed to list followers", zap.Error(err), zap.Stringer("player_id", c.ID))
		}
		events = append(events, notify.MatchActivity{
			PlayerID:  c.ID,
			Name:      records[i].Record.Name,
			Previous:  prev,
			Current:   c.Count,
			Delta:     c.Count - prev,
			Followers: followers,
			SyncedAt:  at.UnixMilli(),
		})
	}
	if len(events) == 0 {
		return
	}

	if err := s.publisher.Publish(ctx, events); err != nil {
		metrics.NotificationErrorsTotal.Inc()
		l.Error("failed to publish match activity", err, zap.Int("events", len(events)))
		return
	}
	metrics.NotificationsPublishedTotal.Add(float64(len(events)))
}

func (s *Service) mirrorStats(ctx context.Context, l *logger.Logger, results []scheduler.Success, at time.Time) {
	if s.mirror == nil {
		return
	}

	rows := make([]writer.PlayerStats, 0, len(results))
	for _, r := range results {
		row, err := writer.StatsFromRecord(r.ID, r.Record, at)
		if err != nil {
			metrics.MirrorWriteErrorsTotal.Inc()
			l.Warn("player not mirrored", zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	if err := s.mirror.WriteBatch(ctx, rows); err != nil {
		metrics.MirrorWriteErrorsTotal.Inc()
		l.Error("failed to mirror player stats", err, zap.Int("rows", len(rows)))
	}
}

// Shutdown waits for in-flight cycles to finish or ctx to expire
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down sync service")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sync cycles: %w", ctx.Err())
	}
}
