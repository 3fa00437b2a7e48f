package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	StoreOptions
	Journal string
}

// ReplayResult reports a journal replay.
type ReplayResult struct {
	Entries int            `json:"entries"`
	LastSeq uint64         `json:"last_seq"`
	Members map[string]int `json:"members"`
	Saved   string         `json:"saved,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <schema-dir>",
		Short: "Replay a change journal into a model",
		Long: `Replay every entry of a change journal, in order, into an empty model of
the schema. Each entry is checked against its digest and must apply to
the model built by the entries before it.

With --path the resulting model is saved to a store, replacing its
contents.

Exit codes:
  0 - Every entry applied
  1 - Journal is corrupt or an entry does not apply
  2 - Command error (journal not found, invalid schema, etc.)

Examples:
  tessera replay --journal ./journal ./schema
  tessera replay --journal ./journal --path ./library.db ./schema
  tessera replay --journal ./journal --store yaml --path ./data ./schema`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal directory (required)")
	_ = cmd.MarkFlagRequired("journal")
	opts.register(cmd, "save the replayed model to this database file or document directory")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	logger := opts.logger(cmd)

	sch, err := loadSchema(f, dir)
	if err != nil {
		return err
	}
	reg, err := sch.Registry()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInvalidSchema, "cannot register schema", err)
	}

	if _, err := os.Stat(opts.Journal); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "journal not found: "+opts.Journal, err)
	}
	cfg := journal.DefaultConfig(opts.Journal)
	cfg.GCInterval = 0
	cfg.Logger = logger
	j, err := journal.Open(cfg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeJournal, "cannot open journal "+opts.Journal, err)
	}
	defer j.Close()

	dm, stop, err := startDomain(ctx, sch, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot create model", err)
	}
	defer stop()

	result := ReplayResult{}
	err = j.Replay(ctx, reg, func(e journal.Entry) error {
		if _, err := dm.Apply(ctx, e.Changes).Result(); err != nil {
			return fmt.Errorf("entry %d: %w", e.Seq, err)
		}
		result.Entries++
		result.LastSeq = e.Seq
		logger.Debug("entry replayed", "seq", e.Seq, "digest", e.Digest)
		return nil
	})
	switch {
	case errors.Is(err, journal.ErrCorrupt):
		return f.Fail(ExitFailure, ErrCodeJournal, "journal is corrupt", err)
	case err != nil:
		return f.Fail(ExitFailure, ErrCodeReplay,
			fmt.Sprintf("replay stopped after %d entries", result.Entries), err)
	}

	if opts.Path != "" {
		st, closeStore, err := openStore(opts.Store, sch, logger)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		defer closeStore()
		if _, err := dm.Save(ctx, st, opts.Path).Result(); err != nil {
			return f.Fail(ExitCommandError, ErrCodeStore, "cannot save "+opts.Path, err)
		}
		result.Saved = opts.Path
	}

	dump, err := dumpModel(dm.Current())
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot encode model", err)
	}
	result.Members = make(map[string]int)
	for _, shard := range dump.Shards {
		for name, n := range shard.Members {
			result.Members[shard.Name+"."+name] = n
		}
	}

	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ replayed %d entries (last seq %d)\n", result.Entries, result.LastSeq)
	for _, shard := range dump.Shards {
		for _, name := range slices.Sorted(maps.Keys(shard.Members)) {
			fmt.Fprintf(f.Writer, "  %s.%s: %d\n", shard.Name, name, shard.Members[name])
		}
	}
	if result.Saved != "" {
		fmt.Fprintf(f.Writer, "  saved to %s (%s)\n", result.Saved, opts.Store)
	}
	return nil
}
