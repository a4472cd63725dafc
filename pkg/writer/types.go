package writer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"ratingsync/pkg/player"
)

// PlayerStats is the flattened row mirrored into PostgreSQL
type PlayerStats struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	Platform   string    `db:"platform"`
	MatchCount int64     `db:"match_count"`
	TopRating  float64   `db:"top_rating"`
	SyncedAt   time.Time `db:"synced_at"`
}

// ErrIDOutOfRange is returned for ids that do not fit the BIGINT id column
var ErrIDOutOfRange = errors.New("player id exceeds BIGINT range")

// StatsFromRecord flattens a fetched record for the mirror
func StatsFromRecord(id player.ID, r *player.Record, syncedAt time.Time) (PlayerStats, error) {
	if uint64(id) > math.MaxInt64 {
		return PlayerStats{}, fmt.Errorf("player %s: %w", id, ErrIDOutOfRange)
	}
	return PlayerStats{
		ID:         int64(id),
		Name:       r.Name,
		Platform:   r.Platform,
		MatchCount: int64(r.TotalMatches()),
		TopRating:  r.TopRating(),
		SyncedAt:   syncedAt,
	}, nil
}
