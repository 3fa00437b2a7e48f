package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/repository"
	"github.com/roach88/tessera/internal/repository/sqlite"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Database string
}

// MigrateResult reports a migration run.
type MigrateResult struct {
	Database string `json:"database"`
	From     int    `json:"from"`
	To       int    `json:"to"`
	Applied  int    `json:"applied"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate <schema-dir>",
		Short: "Create or upgrade the tables of a SQLite store",
		Long: `Create the tables of every shard of a schema in a SQLite database.

The database records the schema version it was migrated to. Running
migrate again with the same version does nothing; a higher version
creates the tables the new schema adds.

Exit codes:
  0 - Database is at the schema version
  2 - Command error (invalid schema, database newer than the schema, etc.)

Examples:
  tessera migrate --db ./library.db ./schema
  tessera migrate --db ./library.db ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runMigrate(opts *MigrateOptions, dir string, cmd *cobra.Command) error {
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

	cfg := sqlite.DefaultConfig(opts.Database)
	cfg.Logger = logger
	db, err := sqlite.Open(cfg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "cannot open database "+opts.Database, err)
	}
	defer db.Close()

	from, err := db.Version(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeStore, "cannot read database version", err)
	}
	if from > sch.Version {
		return f.Fail(ExitCommandError, ErrCodeMigration,
			fmt.Sprintf("database is at version %d, newer than schema version %d", from, sch.Version), nil)
	}

	applied, err := db.Migrate(ctx, []repository.Migration{schemaMigration(sch)})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeMigration, "migration failed", err)
	}
	logger.Debug("database migrated", "path", opts.Database, "from", from, "to", sch.Version, "applied", applied)

	result := MigrateResult{Database: opts.Database, From: from, To: sch.Version, Applied: applied}
	if f.JSON() {
		return f.Success(result)
	}
	if applied == 0 {
		fmt.Fprintf(f.Writer, "✓ %s is up to date (version %d)\n", opts.Database, from)
		return nil
	}
	fmt.Fprintf(f.Writer, "✓ %s migrated from version %d to %d\n", opts.Database, from, sch.Version)
	return nil
}
