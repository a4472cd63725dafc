package ledger

import (
	"context"
	"errors"
	"fmt"

	"ratingsync/pkg/metrics"
	"ratingsync/pkg/player"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"
)

// StatusEntry is one row of the status table
type StatusEntry struct {
	ID     player.ID
	Status player.Status
}

// GetStatus returns the sync bookkeeping for id, or ErrNotFound
func (l *Ledger) GetStatus(ctx context.Context, id player.ID) (player.Status, error) {
	var status player.Status
	err := l.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key(StatusTable, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := bson.Unmarshal(val, &status); err != nil {
				return &EncodingError{Table: StatusTable, ID: id, Err: err}
			}
			return nil
		})
	})
	if err != nil {
		return player.Status{}, fmt.Errorf("get status %d: %w", id, err)
	}
	return status, nil
}

// BatchSetStatus writes all entries in one transaction
func (l *Ledger) BatchSetStatus(ctx context.Context, entries []StatusEntry) error {
	if len(entries) == 0 {
		return nil
	}

	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := bson.Marshal(e.Status)
		if err != nil {
			return &EncodingError{Table: StatusTable, ID: e.ID, Err: err}
		}
		encoded[i] = data
	}

	err := l.update(ctx, StatusTable, func(txn *badger.Txn) error {
		for i, e := range entries {
			if err := l.fail(StatusTable, i); err != nil {
				return err
			}
			if err := txn.Set(key(StatusTable, e.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.LedgerBatchWritesTotal.WithLabelValues(StatusTable).Inc()
	return nil
}
