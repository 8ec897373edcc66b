package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cms-graphql/internal/config"
	"cms-graphql/internal/dbexec"
	"cms-graphql/internal/entry"
	"cms-graphql/internal/entryloader"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type seedOptions struct {
	store        config.EntryStoreConfig
	batchSize    int
	parallel     int
	queryTimeout time.Duration
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	opts := &seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed <entries.json>...",
		Short: "Load JSON entry files into a SQL entry store",
		Long: `Seed reads one or more JSON arrays of entries (the file store format) and
upserts them into the entries table of a MySQL, Postgres or SQLite store.
Rows with an existing id are replaced. Files are written in argument order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := root.logger(cmd.ErrOrStderr())
			n, err := runSeed(cmd.Context(), opts, args, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d entries into %s\n", n, opts.store.Table)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.store.Driver, "driver", config.DriverSQLite, "entry store driver (mysql, postgres, sqlite)")
	flags.StringVar(&opts.store.DSN, "dsn", "", "driver DSN; for sqlite the database file path")
	flags.StringVar(&opts.store.Table, "table", "entries", "entries table name")
	flags.BoolVar(&opts.store.EnsureSchema, "ensure-schema", false, "create the entries table when it does not exist")
	flags.IntVar(&opts.batchSize, "batch-size", 200, "entries per upsert call")
	flags.IntVar(&opts.parallel, "parallel", 4, "files decoded concurrently")
	flags.DurationVar(&opts.queryTimeout, "query-timeout", 30*time.Second, "timeout for each statement")
	_ = cmd.MarkFlagRequired("dsn")
	return cmd
}

// runSeed returns the number of entries written.
func runSeed(ctx context.Context, opts *seedOptions, paths []string, logger *slog.Logger) (int, error) {
	if opts.store.Driver == config.DriverFile {
		return 0, fmt.Errorf("the file driver reads entries directly; seed needs a SQL driver")
	}
	files, err := decodeFiles(ctx, paths, opts.parallel)
	if err != nil {
		return 0, err
	}

	dialect := opts.store.Dialect()
	dsn, err := opts.store.ResolvedDSN()
	if err != nil {
		return 0, err
	}
	db, err := entryloader.Open(entryloader.OpenOptions{Dialect: dialect, DSN: dsn})
	if err != nil {
		return 0, fmt.Errorf("open entry store: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("connect entry store: %w", err)
	}

	source, err := entryloader.NewSQLSource(dbexec.NewStandardExecutor(db.DB, opts.queryTimeout), dialect, opts.store.Table)
	if err != nil {
		return 0, err
	}
	if opts.store.EnsureSchema {
		if err := source.EnsureSchema(ctx); err != nil {
			return 0, err
		}
	}

	batch := max(opts.batchSize, 1)
	total := 0
	for i, entries := range files {
		for start := 0; start < len(entries); start += batch {
			end := min(start+batch, len(entries))
			if err := source.Upsert(ctx, entries[start:end]...); err != nil {
				return total, fmt.Errorf("%s: %w", paths[i], err)
			}
			total += end - start
		}
		logger.Info("seeded entries file", slog.String("path", paths[i]), slog.Int("entries", len(entries)))
	}
	return total, nil
}

// decodeFiles reads every entries file concurrently and returns them in
// argument order.
func decodeFiles(ctx context.Context, paths []string, parallel int) ([][]entry.Entry, error) {
	out := make([][]entry.Entry, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := entryloader.LoadFile(path)
			if err != nil {
				return err
			}
			out[i] = src.All()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
