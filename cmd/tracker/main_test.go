package main

import (
	"bytes"
	"context"
	"testing"

	"ratingsync/pkg/ledger"
	"ratingsync/pkg/logger"
	"ratingsync/pkg/player"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerCommands(t *testing.T) {
	ctx := context.Background()
	store, err := ledger.Open(ledger.Config{InMemory: true}, logger.NewNop())
	require.NoError(t, err)
	defer store.Close()

	exec := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		require.NoError(t, run(ctx, store, &out, args))
		return out.String()
	}

	assert.Equal(t, "tracking 100\ntracking 200\n", exec("track", "100", "200"))
	require.NoError(t, store.SetMatchCount(ctx, 100, 12))
	assert.Equal(t, "100 already tracked\n", exec("track", "100"))

	count, err := store.GetMatchCount(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), count)

	assert.Equal(t, "ID   MATCHES\n100  12\n200  0\n", exec("list"))

	exec("follow", "100", "7")
	exec("follow", "100", "9")
	exec("follow", "200", "7")
	assert.Equal(t, "7\n9\n", exec("followers", "100"))
	assert.Equal(t, "100\n200\n", exec("following", "7"))
	assert.Empty(t, exec("following", "100"))
	exec("unfollow", "100", "7")
	assert.Equal(t, "9\n", exec("followers", "100"))
	exec("unfollow", "100")
	assert.Empty(t, exec("followers", "100"))

	assert.Contains(t, exec("show", "100"), `"match_count": 12`)

	exec("untrack", "200")
	_, err = store.GetMatchCount(ctx, player.ID(200))
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestTrackerRejectsBadInput(t *testing.T) {
	store, err := ledger.Open(ledger.Config{InMemory: true}, logger.NewNop())
	require.NoError(t, err)
	defer store.Close()

	for _, args := range [][]string{
		{"track"},
		{"track", "abc"},
		{"follow", "1"},
		{"following"},
		{"unfollow", "1", "2", "3"},
		{"list", "1"},
		{"show", "404"},
		{"promote", "1"},
	} {
		var out bytes.Buffer
		assert.Error(t, run(context.Background(), store, &out, args), args)
	}
}
