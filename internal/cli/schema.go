package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/model"
	"github.com/roach88/tessera/internal/schema"
)

// SchemaSummary describes a valid schema.
type SchemaSummary struct {
	Version int            `json:"version"`
	Files   int            `json:"files"`
	Shards  []ShardSummary `json:"shards"`
}

// ShardSummary describes the members of one shard.
type ShardSummary struct {
	Name        string              `json:"name"`
	Collections []CollectionSummary `json:"collections"`
	Relations   []RelationSummary   `json:"relations"`
}

// CollectionSummary describes a collection and its fields.
type CollectionSummary struct {
	Name   string         `json:"name"`
	Entity string         `json:"entity"`
	Fields []FieldSummary `json:"fields"`
}

// FieldSummary describes one field.
type FieldSummary struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Nullable bool   `json:"nullable,omitempty"`
}

// RelationSummary describes a relation.
type RelationSummary struct {
	Name        string `json:"name"`
	Parent      string `json:"parent"`
	Child       string `json:"child"`
	Cardinality string `json:"cardinality"`
}

// SchemaErrors lists the errors of an invalid schema.
type SchemaErrors struct {
	Valid  bool          `json:"valid"`
	Errors []SchemaError `json:"errors"`
}

// SchemaError is one schema error.
type SchemaError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <schema-dir>",
		Short: "Check a CUE schema and summarize its shards",
		Long: `Compile the CUE schema in a directory and print its shards, collections,
fields and relations. Every invalid declaration is reported.

Exit codes:
  0 - Schema is valid
  1 - Schema has errors
  2 - Command error (directory not found, no CUE files)

Examples:
  tessera schema ./schema
  tessera schema ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, args[0], cmd)
		},
	}
}

func runSchema(opts *RootOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	logger := opts.logger(cmd)

	sch, errs := LoadSchema(dir)
	if len(errs) > 0 {
		first := errs[0]
		if first.Code == ErrCodeNotFound || first.Code == ErrCodeNoFiles {
			return f.Fail(ExitCommandError, first.Code, first.Message, nil)
		}
		return outputSchemaErrors(f, errs)
	}
	logger.Debug("schema loaded", "dir", dir, "files", sch.Files, "shards", len(sch.Shards))

	summary := Summarize(sch)
	if f.JSON() {
		return f.Success(summary)
	}
	writeSummary(f.Writer, summary)
	return nil
}

// Summarize describes a schema in declaration order.
func Summarize(sch *schema.Schema) SchemaSummary {
	s := SchemaSummary{Version: sch.Version, Files: sch.Files, Shards: make([]ShardSummary, 0, len(sch.Shards))}
	for _, info := range sch.Shards {
		s.Shards = append(s.Shards, summarizeShard(info))
	}
	return s
}

func summarizeShard(info *model.ShardInfo) ShardSummary {
	s := ShardSummary{
		Name:        info.Name,
		Collections: make([]CollectionSummary, 0, len(info.Collections)),
		Relations:   make([]RelationSummary, 0, len(info.Relations)),
	}
	for _, ci := range info.Collections {
		cs := CollectionSummary{Name: ci.Name, Entity: string(ci.EntityType), Fields: make([]FieldSummary, 0, len(ci.Fields))}
		for _, fi := range ci.Fields {
			cs.Fields = append(cs.Fields, FieldSummary{Name: fi.Name, Kind: fi.Kind.String(), Nullable: fi.Nullable})
		}
		s.Collections = append(s.Collections, cs)
	}
	for _, ri := range info.Relations {
		s.Relations = append(s.Relations, RelationSummary{
			Name:        ri.Name,
			Parent:      string(ri.Parent),
			Child:       string(ri.Child),
			Cardinality: ri.Cardinality.String(),
		})
	}
	return s
}

func writeSummary(w io.Writer, s SchemaSummary) {
	fmt.Fprintf(w, "✓ schema v%d (%d file(s), %d shard(s))\n", s.Version, s.Files, len(s.Shards))
	for _, shard := range s.Shards {
		fmt.Fprintf(w, "shard %s\n", shard.Name)
		for _, c := range shard.Collections {
			fmt.Fprintf(w, "  collection %s (%s)\n", c.Name, c.Entity)
			for _, field := range c.Fields {
				kind := field.Kind
				if field.Nullable {
					kind += " | null"
				}
				fmt.Fprintf(w, "    %s: %s\n", field.Name, kind)
			}
		}
		for _, r := range shard.Relations {
			fmt.Fprintf(w, "  relation %s (%s -> %s, %s)\n", r.Name, r.Parent, r.Child, r.Cardinality)
		}
	}
}

func outputSchemaErrors(f *OutputFormatter, errs []*LoadError) error {
	result := SchemaErrors{Errors: make([]SchemaError, 0, len(errs))}
	for _, e := range errs {
		result.Errors = append(result.Errors, SchemaError{Code: e.Code, Message: e.Message, Line: e.Line()})
	}
	if f.JSON() {
		if err := f.Result(false, result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "✗ schema has %d error(s)\n", len(errs))
		for _, e := range result.Errors {
			fmt.Fprintf(f.Writer, "  [%s] %s\n", e.Code, e.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("schema has %d error(s)", len(errs)))
}
