package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"ratingsync/pkg/config"
	"ratingsync/pkg/ledger"
	"ratingsync/pkg/logger"
	"ratingsync/pkg/player"

	"github.com/goccy/go-json"
)

const usage = `usage: tracker [-config file] [-ledger path] <command> [args]

commands:
  track <id>...                 start syncing players (match count seeded at 0)
  untrack <id>...               stop syncing players
  follow <followee> <follower>  add a follow edge
  unfollow <followee> [follower]
                                remove one edge, or every follower of followee
  followers <id>                list followers of a player
  following <id>                list players a player follows
  list                          list tracked players and match counts
  show <id>                     print the stored record and sync status

The syncer holds the ledger lock; stop it before running tracker.
`

func main() {
	configPath := flag.String("config", os.Getenv("RATINGSYNC_CONFIG"), "config file")
	ledgerPath := flag.String("ledger", "", "ledger directory (overrides config)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *ledgerPath != "" {
		cfg.Ledger.Path = *ledgerPath
	}

	l, err := logger.New(logger.Config{
		Level:       "warn",
		Environment: cfg.Environment,
		ServiceName: "tracker",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	store, err := ledger.Open(ledger.Config{Path: cfg.Ledger.Path, SyncWrites: true}, l)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, store, os.Stdout, flag.Args())
	stop()
	store.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store *ledger.Ledger, out io.Writer, args []string) error {
	cmd, args := args[0], args[1:]

	switch cmd {
	case "track":
		ids, err := parseIDs(args, 1, -1)
		if err != nil {
			return err
		}
		for _, id := range ids {
			_, err := store.GetMatchCount(ctx, id)
			if err == nil {
				fmt.Fprintf(out, "%s already tracked\n", id)
				continue
			}
			if !errors.Is(err, ledger.ErrNotFound) {
				return err
			}
			if err := store.SetMatchCount(ctx, id, 0); err != nil {
				return err
			}
			fmt.Fprintf(out, "tracking %s\n", id)
		}
		return nil

	case "untrack":
		ids, err := parseIDs(args, 1, -1)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := store.Untrack(ctx, id); err != nil {
				return err
			}
		}
		return nil

	case "follow":
		ids, err := parseIDs(args, 2, 2)
		if err != nil {
			return err
		}
		return store.AddFollowEdge(ctx, ids[0], ids[1])

	case "unfollow":
		ids, err := parseIDs(args, 1, 2)
		if err != nil {
			return err
		}
		if len(ids) == 1 {
			return store.RemoveAllFollowEdges(ctx, ids[0])
		}
		return store.RemoveFollowEdge(ctx, ids[0], ids[1])

	case "followers":
		ids, err := parseIDs(args, 1, 1)
		if err != nil {
			return err
		}
		followers, err := store.ListFollowers(ctx, ids[0])
		if err != nil {
			return err
		}
		for _, f := range followers {
			fmt.Fprintln(out, f)
		}
		return nil

	case "following":
		ids, err := parseIDs(args, 1, 1)
		if err != nil {
			return err
		}
		followees, err := store.ListFollowees(ctx, ids[0])
		if err != nil {
			return err
		}
		for _, f := range followees {
			fmt.Fprintln(out, f)
		}
		return nil

	case "list":
		if len(args) != 0 {
			return fmt.Errorf("list takes no arguments")
		}
		entries, err := store.ListAllMatchCounts(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tMATCHES")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%d\n", e.ID, e.Count)
		}
		return tw.Flush()

	case "show":
		ids, err := parseIDs(args, 1, 1)
		if err != nil {
			return err
		}
		return show(ctx, store, out, ids[0])
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func show(ctx context.Context, store *ledger.Ledger, out io.Writer, id player.ID) error {
	count, err := store.GetMatchCount(ctx, id)
	if err != nil {
		return err
	}

	view := struct {
		ID         player.ID      `json:"id,string"`
		MatchCount uint64         `json:"match_count"`
		Record     *player.Record `json:"record,omitempty"`
		Status     *player.Status `json:"status,omitempty"`
	}{ID: id, MatchCount: count}

	if rec, err := store.GetPlayerRecord(ctx, id); err == nil {
		view.Record = rec
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}
	if st, err := store.GetStatus(ctx, id); err == nil {
		view.Status = &st
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return err
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// parseIDs parses between lo and hi ids; hi < 0 means unbounded
func parseIDs(args []string, lo, hi int) ([]player.ID, error) {
	if len(args) < lo {
		return nil, fmt.Errorf("expected at least %d ids, got %d", lo, len(args))
	}
	if hi >= 0 && len(args) > hi {
		return nil, fmt.Errorf("expected at most %d ids, got %d", hi, len(args))
	}
	ids := make([]player.ID, len(args))
	for i, a := range args {
		id, err := player.ParseID(a)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
