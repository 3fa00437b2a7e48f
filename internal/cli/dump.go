package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/domain"
	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/schema"
	"github.com/roach88/tessera/internal/storage/sqlstore"
	"github.com/roach88/tessera/internal/storage/yamldoc"
)

// StoreOptions are the flags selecting a store.
type StoreOptions struct {
	Store string
	Path  string
}

func (s *StoreOptions) register(cmd *cobra.Command, pathUsage string) {
	cmd.Flags().StringVar(&s.Store, "store", StoreSQLite, "store kind (sqlite|yaml)")
	cmd.Flags().StringVar(&s.Path, "path", "", pathUsage)
}

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	StoreOptions
}

// DumpResult holds the stored shards.
type DumpResult struct {
	Shards []ShardDump `json:"shards"`
}

// ShardDump is the stored content of one shard.
type ShardDump struct {
	Name     string         `json:"name"`
	Members  map[string]int `json:"members"`
	Document string         `json:"document"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <schema-dir>",
		Short: "Load a store and print its shards",
		Long: `Load a SQLite database or a YAML document directory into a model of
the schema and print every shard as a YAML document.

Exit codes:
  0 - Store loaded
  2 - Command error (invalid schema, nothing stored at the path, etc.)

Examples:
  tessera dump --path ./library.db ./schema
  tessera dump --store yaml --path ./data ./schema
  tessera dump --path ./library.db ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	opts.register(cmd, "database file or document directory (required)")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

func runDump(opts *DumpOptions, dir string, cmd *cobra.Command) error {
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
	st, closeStore, err := openStore(opts.Store, sch, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	defer closeStore()

	dm, stop, err := startDomain(ctx, sch, logger)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot create model", err)
	}
	defer stop()

	m, err := dm.Load(ctx, st, opts.Path).Result()
	if err != nil {
		if sqlstore.IsNotExist(err) {
			return f.Fail(ExitCommandError, ErrCodeNotFound, "nothing stored at "+opts.Path, err)
		}
		return f.Fail(ExitCommandError, ErrCodeStore, "cannot load "+opts.Path, err)
	}
	logger.Debug("store loaded", "store", opts.Store, "path", opts.Path, "generation", m.Generation())

	result, err := dumpModel(m)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "cannot encode model", err)
	}
	if f.JSON() {
		return f.Success(result)
	}
	for i, shard := range result.Shards {
		if i > 0 {
			fmt.Fprintln(f.Writer, "---")
		}
		fmt.Fprint(f.Writer, shard.Document)
	}
	return nil
}

// startDomain starts a domain model over an empty model of the schema. stop
// closes it.
func startDomain(ctx context.Context, sch *schema.Schema, logger *slog.Logger) (*domain.DomainModel, func(), error) {
	m, err := sch.NewModel()
	if err != nil {
		return nil, nil, err
	}
	dm := domain.New(m, domain.WithLogger(logger))
	runCtx, cancel := context.WithCancel(ctx)
	dm.Start(runCtx)
	return dm, func() {
		dm.Close()
		cancel()
	}, nil
}

func dumpModel(m *model.Model) (DumpResult, error) {
	result := DumpResult{Shards: make([]ShardDump, 0, len(m.Shards()))}
	for _, shard := range m.Shards() {
		doc, err := yamldoc.Encode(shard)
		if err != nil {
			return DumpResult{}, fmt.Errorf("shard %s: %w", shard.Info().Name, err)
		}
		members := make(map[string]int)
		for _, member := range shard.Members() {
			switch mv := member.(type) {
			case model.CollectionView:
				members[mv.Info().Name] = mv.Len()
			case model.RelationView:
				members[mv.Info().Name] = mv.Len()
			}
		}
		result.Shards = append(result.Shards, ShardDump{
			Name:     shard.Info().Name,
			Members:  members,
			Document: string(doc),
		})
	}
	return result, nil
}
