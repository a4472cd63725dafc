package ranking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ratingsync/pkg/logger"
	"ratingsync/pkg/player"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second})
}

func TestFetchPlayer(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/player/100", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 100, "name": "Ky", "ratings": [{"character": "Ky Kiske", "match_count": 5}]}`))
	})

	record, err := c.FetchPlayer(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.ID)
	assert.Equal(t, uint64(5), record.TotalMatches())
}

func TestFetchPlayerErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "not found",
			status: http.StatusNotFound,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrPlayerNotFound) },
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusBadGateway, se.Code)
				assert.Equal(t, "upstream down", se.Body)
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"name": "no id"}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrMalformedResponse) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.FetchPlayer(context.Background(), 1)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetchPlayerHonoursContext(t *testing.T) {
	release := make(chan struct{})
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchPlayer(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type MockClient struct{ mock.Mock }

func (m *MockClient) FetchPlayer(ctx context.Context, id player.ID) (*player.Record, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*player.Record)
	return r, args.Error(1)
}

func TestBreakerOpensAndFailsFast(t *testing.T) {
	mc := new(MockClient)
	mc.On("FetchPlayer", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	s := DefaultBreakerSettings()
	s.MinRequests = 3
	s.Timeout = time.Hour
	b := NewBreakerClient("test-open", mc, s, logger.NewNop())

	for i := 0; i < 3; i++ {
		_, err := b.FetchPlayer(context.Background(), 1)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.FetchPlayer(context.Background(), 1)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	mc.AssertNumberOfCalls(t, "FetchPlayer", 3)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	var calls atomic.Int32
	mc := new(MockClient)
	mc.On("FetchPlayer", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		calls.Add(1)
	}).Return(nil, ErrPlayerNotFound)

	s := DefaultBreakerSettings()
	s.MinRequests = 2
	b := NewBreakerClient("test-notfound", mc, s, logger.NewNop())

	for i := 0; i < 5; i++ {
		_, err := b.FetchPlayer(context.Background(), player.ID(i))
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, int32(5), calls.Load())
}
