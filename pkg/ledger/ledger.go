package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"ratingsync/pkg/logger"
	"ratingsync/pkg/metrics"
	"ratingsync/pkg/player"
	"ratingsync/pkg/retry"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Table names. Each table is a key prefix "<name>/" inside one badger store.
const (
	MatchCountTable   = "match_count_table"
	PlayerRecordTable = "player_record_table"
	FollowersTable    = "followers_table"
	StatusTable       = "status_table"
)

var (
	// ErrNotFound is returned when a key has never been set
	ErrNotFound = errors.New("ledger: not found")

	// ErrEncoding matches every *EncodingError
	ErrEncoding = errors.New("ledger: encoding error")
)

// EncodingError reports a value that could not be encoded or decoded
type EncodingError struct {
	Table string
	ID    player.ID
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("ledger: %s[%d]: %v", e.Table, e.ID, e.Err)
}

func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

// Config holds the store settings
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// Ledger is the durable transactional store behind the sync pipeline
type Ledger struct {
	db        *badger.DB
	logger    *logger.Logger
	retryOpts retry.RetryOptions

	// failpoint, when set, runs before each entry of a batch write inside the
	// open transaction. A non-nil return aborts the transaction.
	failpoint func(table string, index int) error
}

// Open opens (or creates) the store at cfg.Path
func Open(cfg Config, l *logger.Logger) (*Ledger, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("ledger: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	retryOpts := retry.DefaultOptions()
	retryOpts.Classifier = retry.On(badger.ErrConflict)

	l.Info("ledger opened", zap.String("path", cfg.Path), zap.Bool("in_memory", cfg.InMemory))

	return &Ledger{
		db:        db,
		logger:    l,
		retryOpts: retryOpts,
	}, nil
}

// Close flushes and closes the store
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping runs an empty read transaction
func (l *Ledger) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(func(txn *badger.Txn) error { return nil })
}

// RunGC reclaims value log space. Nothing to rewrite is not an error.
func (l *Ledger) RunGC() error {
	err := l.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// view runs fn in a read-only transaction
func (l *Ledger) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.db.View(fn)
}

// update runs fn in a write transaction, retrying on optimistic conflicts.
// fn must be safe to re-run: a conflicting attempt is discarded wholesale.
func (l *Ledger) update(ctx context.Context, table string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := retry.Do(ctx, func() error {
		return l.db.Update(fn)
	}, l.retryOpts)
	if err != nil {
		metrics.LedgerWriteErrorsTotal.WithLabelValues(table).Inc()
		return fmt.Errorf("%s: %w", table, err)
	}
	metrics.LedgerCommitLatency.Observe(time.Since(start).Seconds())
	return nil
}

func (l *Ledger) fail(table string, index int) error {
	if l.failpoint == nil {
		return nil
	}
	return l.failpoint(table, index)
}

func tablePrefix(table string) []byte {
	return []byte(table + "/")
}

func key(table string, id player.ID) []byte {
	k := tablePrefix(table)
	return binary.BigEndian.AppendUint64(k, uint64(id))
}

// idFromKey extracts the id that follows the table prefix
func idFromKey(table string, k []byte) (player.ID, bool) {
	p := len(table) + 1
	if len(k) < p+8 {
		return 0, false
	}
	return player.ID(binary.BigEndian.Uint64(k[p : p+8])), true
}

// scan iterates every key under prefix, handing each item to fn
func scan(ctx context.Context, txn *badger.Txn, prefix []byte, values bool, fn func(item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = values
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}
