package writer

import (
	"context"
	"fmt"
	"time"

	"ratingsync/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// copyThreshold is the batch size from which COPY beats row-by-row upserts
const copyThreshold = 100

// StatsWriter mirrors committed player stats into an external database
type StatsWriter interface {
	// WriteBatch upserts a batch of rows in one transaction
	WriteBatch(ctx context.Context, rows []PlayerStats) error

	// Close closes the database connection pool
	Close() error
}

// PGWriter implements StatsWriter using pgxpool
type PGWriter struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URI      string
	MinConns int32
	MaxConns int32
}

const createTable = `
	CREATE TABLE IF NOT EXISTS player_stats (
		id          BIGINT PRIMARY KEY,
		name        TEXT NOT NULL,
		platform    TEXT NOT NULL,
		match_count BIGINT NOT NULL,
		top_rating  DOUBLE PRECISION NOT NULL,
		synced_at   TIMESTAMPTZ NOT NULL
	)
`

const upsertSet = `
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		platform = EXCLUDED.platform,
		match_count = EXCLUDED.match_count,
		top_rating = EXCLUDED.top_rating,
		synced_at = EXCLUDED.synced_at
	WHERE player_stats.synced_at <= EXCLUDED.synced_at
`

var columns = []string{"id", "name", "platform", "match_count", "top_rating", "synced_at"}

// NewPostgresWriter connects, verifies the connection and ensures the table exists
func NewPostgresWriter(ctx context.Context, cfg PostgresConfig, l *logger.Logger) (*PGWriter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create player_stats: %w", err)
	}

	return &PGWriter{pool: pool, logger: l}, nil
}

// WriteBatch writes the rows using the best available protocol
func (w *PGWriter) WriteBatch(ctx context.Context, rows []PlayerStats) error {
	if len(rows) == 0 {
		return nil
	}

	if ShouldUseCopy(rows) {
		return w.writeBatchCopy(ctx, rows)
	}
	return w.writeBatchInsert(ctx, rows)
}

// writeBatchInsert upserts row by row inside one transaction
func (w *PGWriter) writeBatchInsert(ctx context.Context, rows []PlayerStats) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO player_stats (id, name, platform, match_count, top_rating, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)` + upsertSet

	for _, r := range rows {
		tag, err := tx.Exec(ctx, query, r.ID, r.Name, r.Platform, r.MatchCount, r.TopRating, r.SyncedAt)
		if err != nil {
			return fmt.Errorf("upsert player %d: %w", r.ID, err)
		}
		if tag.RowsAffected() == 0 {
			w.logger.Debug("mirror kept newer row", zap.Int64("player_id", r.ID))
		}
	}
	return tx.Commit(ctx)
}

// writeBatchCopy streams rows into a temp table, then upserts from it
func (w *PGWriter) writeBatchCopy(ctx context.Context, rows []PlayerStats) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "CREATE TEMP TABLE player_stats_temp (LIKE player_stats) ON COMMIT DROP")
	if err != nil {
		return fmt.Errorf("failed to create temp table: %w", err)
	}

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"player_stats_temp"},
		columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.ID, r.Name, r.Platform, r.MatchCount, r.TopRating, r.SyncedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy from failed: %w", err)
	}

	// DISTINCT ON guards against the same id appearing twice in one batch
	_, err = tx.Exec(ctx, `INSERT INTO player_stats
		SELECT DISTINCT ON (id) * FROM player_stats_temp ORDER BY id, synced_at DESC`+upsertSet)
	if err != nil {
		return fmt.Errorf("upsert from temp table failed: %w", err)
	}

	return tx.Commit(ctx)
}

// Close closes the pool
func (w *PGWriter) Close() error {
	w.pool.Close()
	return nil
}

// ShouldUseCopy reports whether a batch goes through the COPY path
func ShouldUseCopy(rows []PlayerStats) bool {
	return len(rows) >= copyThreshold
}
