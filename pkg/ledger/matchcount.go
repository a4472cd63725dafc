package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"ratingsync/pkg/metrics"
	"ratingsync/pkg/player"

	"github.com/dgraph-io/badger/v4"
)

// MatchCountEntry is one row of the match-count table
type MatchCountEntry struct {
	ID    player.ID
	Count uint64
}

func encodeCount(count uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), count)
}

func decodeCount(id player.ID, val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, &EncodingError{Table: MatchCountTable, ID: id, Err: fmt.Errorf("match count is %d bytes, want 8", len(val))}
	}
	return binary.BigEndian.Uint64(val), nil
}

// GetMatchCount returns ErrNotFound if id was never set
func (l *Ledger) GetMatchCount(ctx context.Context, id player.ID) (uint64, error) {
	var count uint64
	err := l.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key(MatchCountTable, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			count, err = decodeCount(id, val)
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("get match count %d: %w", id, err)
	}
	return count, nil
}

// SetMatchCount overwrites the match count for id
func (l *Ledger) SetMatchCount(ctx context.Context, id player.ID, count uint64) error {
	return l.update(ctx, MatchCountTable, func(txn *badger.Txn) error {
		return txn.Set(key(MatchCountTable, id), encodeCount(count))
	})
}

// BatchSetMatchCounts writes all entries in one transaction; either every
// entry is visible after it returns nil or none is.
func (l *Ledger) BatchSetMatchCounts(ctx context.Context, entries []MatchCountEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := l.update(ctx, MatchCountTable, func(txn *badger.Txn) error {
		for i, e := range entries {
			if err := l.fail(MatchCountTable, i); err != nil {
				return err
			}
			if err := txn.Set(key(MatchCountTable, e.ID), encodeCount(e.Count)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.LedgerBatchWritesTotal.WithLabelValues(MatchCountTable).Inc()
	return nil
}

// ListAllMatchCounts scans the whole table in key order. The key set is the
// tracked population.
func (l *Ledger) ListAllMatchCounts(ctx context.Context) ([]MatchCountEntry, error) {
	var entries []MatchCountEntry
	err := l.view(ctx, func(txn *badger.Txn) error {
		return scan(ctx, txn, tablePrefix(MatchCountTable), true, func(item *badger.Item) error {
			id, ok := idFromKey(MatchCountTable, item.Key())
			if !ok {
				return &EncodingError{Table: MatchCountTable, Err: fmt.Errorf("malformed key %x", item.Key())}
			}
			return item.Value(func(val []byte) error {
				count, err := decodeCount(id, val)
				if err != nil {
					return err
				}
				entries = append(entries, MatchCountEntry{ID: id, Count: count})
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list match counts: %w", err)
	}
	return entries, nil
}

// Untrack removes id's match count, record and status in one transaction.
// Follow edges are left alone.
func (l *Ledger) Untrack(ctx context.Context, id player.ID) error {
	return l.update(ctx, MatchCountTable, func(txn *badger.Txn) error {
		for _, table := range []string{MatchCountTable, PlayerRecordTable, StatusTable} {
			if err := txn.Delete(key(table, id)); err != nil {
				return err
			}
		}
		return nil
	})
}
