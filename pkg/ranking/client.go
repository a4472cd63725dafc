package ranking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ratingsync/pkg/parser"
	"ratingsync/pkg/player"
)

var (
	// ErrPlayerNotFound is returned when the service does not know the id
	ErrPlayerNotFound = errors.New("ranking: player not found")

	// ErrMalformedResponse matches any body that does not parse as a player
	ErrMalformedResponse = parser.ErrMalformed
)

// maxBodyBytes caps how much of a response body is read
const maxBodyBytes = 4 << 20

// Client fetches one player's statistics from the ranking service.
// Implementations do not retry, cache or rate limit.
type Client interface {
	FetchPlayer(ctx context.Context, id player.ID) (*player.Record, error)
}

// StatusError reports an unexpected HTTP status from the service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ranking: unexpected status %d: %s", e.Code, e.Body)
}

// Config holds ranking service connection settings
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPClient implements Client over the service's REST API
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a new HTTPClient instance
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// FetchPlayer performs GET {base}/player/{id}
func (c *HTTPClient) FetchPlayer(ctx context.Context, id player.ID) (*player.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/player/"+id.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch player %d: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read player %d: %w", id, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("player %d: %w", id, ErrPlayerNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	record, err := parser.ParsePlayerResponse(body)
	if err != nil {
		return nil, fmt.Errorf("player %d: %w", id, err)
	}
	return record, nil
}
