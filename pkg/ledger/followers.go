package ledger

import (
	"context"
	"encoding/binary"
	"fmt"

	"ratingsync/pkg/player"

	"github.com/dgraph-io/badger/v4"
)

// The followers table is a multimap: one key per (followee, follower) pair,
// with an empty value. Re-inserting a pair rewrites the same key.

func edgeKey(followee, follower player.ID) []byte {
	return binary.BigEndian.AppendUint64(key(FollowersTable, followee), uint64(follower))
}

func followerFromKey(k []byte) (player.ID, player.ID, bool) {
	p := len(FollowersTable) + 1
	if len(k) != p+16 {
		return 0, 0, false
	}
	followee := binary.BigEndian.Uint64(k[p : p+8])
	follower := binary.BigEndian.Uint64(k[p+8:])
	return player.ID(followee), player.ID(follower), true
}

// AddFollowEdge records that follower follows followee
func (l *Ledger) AddFollowEdge(ctx context.Context, followee, follower player.ID) error {
	return l.update(ctx, FollowersTable, func(txn *badger.Txn) error {
		return txn.Set(edgeKey(followee, follower), nil)
	})
}

// RemoveFollowEdge deletes the pair if present
func (l *Ledger) RemoveFollowEdge(ctx context.Context, followee, follower player.ID) error {
	return l.update(ctx, FollowersTable, func(txn *badger.Txn) error {
		return txn.Delete(edgeKey(followee, follower))
	})
}

// RemoveAllFollowEdges drops every follower of followee in one transaction
func (l *Ledger) RemoveAllFollowEdges(ctx context.Context, followee player.ID) error {
	prefix := key(FollowersTable, followee)
	return l.update(ctx, FollowersTable, func(txn *badger.Txn) error {
		var keys [][]byte
		err := scan(ctx, txn, prefix, false, func(item *badger.Item) error {
			keys = append(keys, item.KeyCopy(nil))
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListFollowers returns the followers of followee in ascending id order
func (l *Ledger) ListFollowers(ctx context.Context, followee player.ID) ([]player.ID, error) {
	var followers []player.ID
	err := l.view(ctx, func(txn *badger.Txn) error {
		return scan(ctx, txn, key(FollowersTable, followee), false, func(item *badger.Item) error {
			_, follower, ok := followerFromKey(item.Key())
			if !ok {
				return &EncodingError{Table: FollowersTable, ID: followee, Err: fmt.Errorf("malformed key %x", item.Key())}
			}
			followers = append(followers, follower)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list followers of %d: %w", followee, err)
	}
	return followers, nil
}

// ListFollowees returns every player follower follows. It scans the whole
// table since edges are keyed by followee.
func (l *Ledger) ListFollowees(ctx context.Context, follower player.ID) ([]player.ID, error) {
	var followees []player.ID
	err := l.view(ctx, func(txn *badger.Txn) error {
		return scan(ctx, txn, tablePrefix(FollowersTable), false, func(item *badger.Item) error {
			followee, f, ok := followerFromKey(item.Key())
			if !ok {
				return &EncodingError{Table: FollowersTable, Err: fmt.Errorf("malformed key %x", item.Key())}
			}
			if f == follower {
				followees = append(followees, followee)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list followees of %d: %w", follower, err)
	}
	return followees, nil
}
