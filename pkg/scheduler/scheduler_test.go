package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ratingsync/pkg/logger"
	"ratingsync/pkg/player"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClient answers with a record whose only rating holds id matches,
// after an optional per-id latency.
type fakeClient struct {
	mu       sync.Mutex
	calls    []player.ID
	launches []time.Time
	latency  func(id player.ID) time.Duration
	fail     func(id player.ID) error
}

func (f *fakeClient) FetchPlayer(ctx context.Context, id player.ID) (*player.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.launches = append(f.launches, time.Now())
	f.mu.Unlock()

	if f.latency != nil {
		select {
		case <-time.After(f.latency(id)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail != nil {
		if err := f.fail(id); err != nil {
			return nil, err
		}
	}
	n := int64(id)
	return &player.Record{ID: int64(id), Ratings: []player.Rating{{MatchCount: &n}}}, nil
}

func ids(n int) []player.ID {
	out := make([]player.ID, n)
	for i := range out {
		out[i] = player.ID(i + 1)
	}
	return out
}

func TestFetchAllEmptyPopulation(t *testing.T) {
	fc := &fakeClient{}
	s := New(fc, logger.NewNop())

	start := time.Now()
	res := s.FetchAll(context.Background(), nil, time.Minute)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
	assert.Zero(t, res.Launched)
	assert.Empty(t, res.Records)
	assert.Empty(t, fc.calls)
}

func TestFetchAllPacesLaunches(t *testing.T) {
	fc := &fakeClient{latency: func(player.ID) time.Duration { return 10 * time.Millisecond }}
	s := New(fc, logger.NewNop())

	const n = 5
	budget := 200 * time.Millisecond
	delay := budget / n

	start := time.Now()
	res := s.FetchAll(context.Background(), ids(n), budget)
	elapsed := time.Since(start)

	assert.Equal(t, n, res.Launched)
	assert.Len(t, res.Records, n)
	assert.Len(t, fc.calls, n)

	// (n-1) delays plus the slowest fetch, with scheduling slack
	assert.GreaterOrEqual(t, elapsed, (n-1)*delay-10*time.Millisecond)
	assert.Less(t, elapsed, (n-1)*delay+10*time.Millisecond+150*time.Millisecond)

	for i := 1; i < len(fc.launches); i++ {
		gap := fc.launches[i].Sub(fc.launches[i-1])
		assert.GreaterOrEqual(t, gap, delay-10*time.Millisecond, "launch %d came too early", i)
	}
}

func TestFetchAllLaunchesEveryID(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("exactly n fetches are launched and collected", prop.ForAll(
		func(n int) bool {
			fc := &fakeClient{fail: func(id player.ID) error {
				if id%3 == 0 {
					return errors.New("boom")
				}
				return nil
			}}
			res := New(fc, logger.NewNop()).FetchAll(context.Background(), ids(n), time.Duration(n)*time.Millisecond)

			return res.Launched == n &&
				len(fc.calls) == n &&
				len(res.Records)+len(res.Failures) == n &&
				len(res.Failures) == n/3
		},
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestFetchAllCollectsInCompletionOrder(t *testing.T) {
	fc := &fakeClient{latency: func(id player.ID) time.Duration {
		if id == 1 {
			return 80 * time.Millisecond
		}
		return 0
	}}
	res := New(fc, logger.NewNop()).FetchAll(context.Background(), ids(3), 6*time.Millisecond)

	require.Len(t, res.Records, 3)
	assert.Equal(t, player.ID(1), res.Records[2].ID)
	assert.Equal(t, uint64(1), res.Records[2].Record.TotalMatches())
}

func TestFetchAllFailuresAreLoggedNotFatal(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	fc := &fakeClient{fail: func(id player.ID) error {
		if id == 2 {
			return errors.New("service unavailable")
		}
		return nil
	}}
	res := New(fc, logger.FromZap(zap.New(core))).FetchAll(context.Background(), ids(3), 0)

	assert.Len(t, res.Records, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, player.ID(2), res.Failures[0].ID)

	logs := observed.FilterMessage("player fetch failed").All()
	require.Len(t, logs, 1)
	assert.Equal(t, "2", logs[0].ContextMap()["player_id"])
}

func TestFetchAllZeroDelayIsUnpaced(t *testing.T) {
	fc := &fakeClient{}
	start := time.Now()
	res := New(fc, logger.NewNop()).FetchAll(context.Background(), ids(500), 0)

	assert.Equal(t, 500, res.Launched)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchAllStopsLaunchingOnCancel(t *testing.T) {
	var inflight atomic.Int32
	fc := &fakeClient{latency: func(player.ID) time.Duration {
		inflight.Add(1)
		return 5 * time.Millisecond
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := New(fc, logger.NewNop()).FetchAll(ctx, ids(10), time.Second)

	assert.Less(t, res.Launched, 10)
	assert.Equal(t, res.Launched, len(res.Records)+len(res.Failures))
	assert.Equal(t, int32(res.Launched), inflight.Load())
}

func TestFetchTimeoutBoundsHungFetch(t *testing.T) {
	fc := &fakeClient{latency: func(id player.ID) time.Duration {
		if id == 1 {
			return time.Hour
		}
		return 0
	}}
	s := New(fc, logger.NewNop(), WithFetchTimeout(30*time.Millisecond))

	start := time.Now()
	res := s.FetchAll(context.Background(), ids(2), 0)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, context.DeadlineExceeded)
	assert.Len(t, res.Records, 1)
}
