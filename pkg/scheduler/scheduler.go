package scheduler

import (
	"context"
	"sync"
	"time"

	"ratingsync/pkg/logger"
	"ratingsync/pkg/metrics"
	"ratingsync/pkg/player"
	"ratingsync/pkg/ranking"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Failure is one player whose fetch did not produce a record
type Failure struct {
	ID  player.ID
	Err error
}

// Success is a fetched record keyed by the id it was requested under
type Success struct {
	ID     player.ID
	Record *player.Record
}

// Result holds the outcome of one fan-out, in completion order
type Result struct {
	Records  []Success
	Failures []Failure
	Launched int
}

// Scheduler fans out one ranking lookup per player, spreading the launches
// evenly over a time budget so the call rate stays under budget/len(ids).
type Scheduler struct {
	client       ranking.Client
	logger       *logger.Logger
	fetchTimeout time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithFetchTimeout bounds each individual lookup. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.fetchTimeout = d
	}
}

// New creates a new Scheduler instance
func New(client ranking.Client, l *logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		client: client,
		logger: l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAll launches one fetch per id, sleeping budget/len(ids) between
// launches, and waits for every launched fetch. Failures are logged and
// returned, never aborting the rest of the fan-out. If ctx ends while pacing,
// no further fetches are launched.
func (s *Scheduler) FetchAll(ctx context.Context, ids []player.ID, budget time.Duration) Result {
	if len(ids) == 0 {
		return Result{}
	}

	delay := budget / time.Duration(len(ids))
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	type outcome struct {
		id     player.ID
		record *player.Record
		err    error
	}
	outcomes := make(chan outcome, len(ids))

	var wg sync.WaitGroup
	launched := 0
	for _, id := range ids {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Warn("fan-out stopped early",
				zap.Error(err),
				zap.Int("launched", launched),
				zap.Int("population", len(ids)))
			break
		}

		wg.Add(1)
		launched++
		metrics.FetchLaunchedTotal.Inc()
		go func(id player.ID) {
			defer wg.Done()
			record, err := s.fetch(ctx, id)
			outcomes <- outcome{id: id, record: record, err: err}
		}(id)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	res := Result{Launched: launched}
	for o := range outcomes {
		if o.err != nil {
			metrics.FetchResultsTotal.WithLabelValues("failure").Inc()
			s.logger.Warn("player fetch failed", zap.Error(o.err), zap.Stringer("player_id", o.id))
			res.Failures = append(res.Failures, Failure{ID: o.id, Err: o.err})
			continue
		}
		metrics.FetchResultsTotal.WithLabelValues("success").Inc()
		res.Records = append(res.Records, Success{ID: o.id, Record: o.record})
	}

	s.logger.Debug("fan-out complete",
		zap.Int("launched", res.Launched),
		zap.Int("succeeded", len(res.Records)),
		zap.Int("failed", len(res.Failures)),
		zap.Duration("delay", delay))

	return res
}

func (s *Scheduler) fetch(ctx context.Context, id player.ID) (*player.Record, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	record, err := s.client.FetchPlayer(ctx, id)
	metrics.FetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ranking.ErrMalformedResponse
	}
	return record, nil
}
