package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"cuelang.org/go/cue/token"

	"github.com/roach88/tessera/internal/repository"
	"github.com/roach88/tessera/internal/repository/sqlite"
	"github.com/roach88/tessera/internal/schema"
	"github.com/roach88/tessera/internal/storage"
	"github.com/roach88/tessera/internal/storage/sqlstore"
	"github.com/roach88/tessera/internal/storage/yamldoc"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Path not found
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeInvalidSchema = "E004" // Schema declaration error
	ErrCodeStore         = "E005" // Store open, load or save error
	ErrCodeMigration     = "E006" // Migration error
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeJournal       = "E008" // Journal open or read error
	ErrCodeReplay        = "E009" // Journaled changes do not apply

	ErrCodeTestFailed = "E101" // One or more scenarios failed
)

// LoadError is a schema loading error with its source position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Line returns the source line of the error, or 0.
func (e *LoadError) Line() int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// LoadSchema compiles the schema in dir. Every declaration error is
// returned as its own LoadError.
func LoadSchema(dir string) (*schema.Schema, []*LoadError) {
	sch, err := schema.Load(dir)
	if err == nil {
		return sch, nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, []*LoadError{{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	case errors.Is(err, schema.ErrNoFiles):
		return nil, []*LoadError{{Code: ErrCodeNoFiles, Message: err.Error()}}
	}

	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make([]*LoadError, 0, len(errs))
	for _, e := range errs {
		var serr *schema.Error
		if errors.As(e, &serr) {
			out = append(out, &LoadError{Code: ErrCodeInvalidSchema, Message: serr.Error(), Pos: serr.Pos})
			continue
		}
		out = append(out, &LoadError{Code: ErrCodeGeneric, Message: e.Error()})
	}
	return nil, out
}

// loadSchema compiles the schema in dir for commands that need a valid one.
func loadSchema(f *OutputFormatter, dir string) (*schema.Schema, error) {
	sch, errs := LoadSchema(dir)
	if len(errs) == 0 {
		return sch, nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return nil, f.Fail(ExitCommandError, errs[0].Code, "cannot load schema "+dir, errors.Join(joined...))
}

// Store kinds accepted by --store.
const (
	StoreSQLite = "sqlite"
	StoreYAML   = "yaml"
)

// ValidStores lists the store kinds.
var ValidStores = []string{StoreSQLite, StoreYAML}

// schemaMigration creates every table of the schema, numbered by the
// schema version.
func schemaMigration(sch *schema.Schema) repository.Migration {
	return sqlite.SchemaMigration(sch.Version, fmt.Sprintf("schema v%d", sch.Version), sch.Shards...)
}

// openStore returns the storage of a kind and the function releasing it.
func openStore(kind string, sch *schema.Schema, logger *slog.Logger) (storage.Storage, func() error, error) {
	switch kind {
	case StoreSQLite:
		st := sqlstore.New(
			sqlstore.WithLogger(logger),
			sqlstore.WithMigrations(schemaMigration(sch)),
		)
		return st, st.Close, nil
	case StoreYAML:
		return yamldoc.New(yamldoc.WithLogger(logger)), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q: must be one of %v", kind, ValidStores)
	}
}
