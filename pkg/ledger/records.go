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

// RecordEntry is one row of the player-record table
type RecordEntry struct {
	ID     player.ID
	Record *player.Record
}

var errNilRecord = errors.New("nil record")

func encodeRecord(id player.ID, r *player.Record) ([]byte, error) {
	if r == nil {
		return nil, &EncodingError{Table: PlayerRecordTable, ID: id, Err: errNilRecord}
	}
	data, err := bson.Marshal(r)
	if err != nil {
		return nil, &EncodingError{Table: PlayerRecordTable, ID: id, Err: err}
	}
	return data, nil
}

func decodeRecord(id player.ID, val []byte) (*player.Record, error) {
	var r player.Record
	if err := bson.Unmarshal(val, &r); err != nil {
		return nil, &EncodingError{Table: PlayerRecordTable, ID: id, Err: err}
	}
	return &r, nil
}

// GetPlayerRecord returns ErrNotFound when absent and an *EncodingError when
// the stored bytes do not decode.
func (l *Ledger) GetPlayerRecord(ctx context.Context, id player.ID) (*player.Record, error) {
	var record *player.Record
	err := l.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key(PlayerRecordTable, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = decodeRecord(id, val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get player record %d: %w", id, err)
	}
	return record, nil
}

// SetPlayerRecord overwrites the stored record for id
func (l *Ledger) SetPlayerRecord(ctx context.Context, id player.ID, r *player.Record) error {
	data, err := encodeRecord(id, r)
	if err != nil {
		return err
	}
	return l.update(ctx, PlayerRecordTable, func(txn *badger.Txn) error {
		return txn.Set(key(PlayerRecordTable, id), data)
	})
}

// BatchSetPlayerRecords encodes every record up front, then writes them all in
// one transaction. An encoding failure aborts before the transaction opens.
func (l *Ledger) BatchSetPlayerRecords(ctx context.Context, entries []RecordEntry) error {
	if len(entries) == 0 {
		return nil
	}

	encoded := make([][]byte, len(entries))
	for i, e := range entries {
		data, err := encodeRecord(e.ID, e.Record)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	err := l.update(ctx, PlayerRecordTable, func(txn *badger.Txn) error {
		for i, e := range entries {
			if err := l.fail(PlayerRecordTable, i); err != nil {
				return err
			}
			if err := txn.Set(key(PlayerRecordTable, e.ID), encoded[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.LedgerBatchWritesTotal.WithLabelValues(PlayerRecordTable).Inc()
	return nil
}

// ListAllPlayerRecords scans the record table. A record that fails to decode
// fails the whole listing.
func (l *Ledger) ListAllPlayerRecords(ctx context.Context) ([]RecordEntry, error) {
	var entries []RecordEntry
	err := l.view(ctx, func(txn *badger.Txn) error {
		return scan(ctx, txn, tablePrefix(PlayerRecordTable), true, func(item *badger.Item) error {
			id, ok := idFromKey(PlayerRecordTable, item.Key())
			if !ok {
				return &EncodingError{Table: PlayerRecordTable, Err: fmt.Errorf("malformed key %x", item.Key())}
			}
			return item.Value(func(val []byte) error {
				r, err := decodeRecord(id, val)
				if err != nil {
					return err
				}
				entries = append(entries, RecordEntry{ID: id, Record: r})
				return nil
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list player records: %w", err)
	}
	return entries, nil
}
