package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/harness"
	"github.com/roach88/tessera/internal/storage/sqlstore"
	"github.com/roach88/tessera/internal/storage/yamldoc"
)

// seed runs a small library scenario: one book, one author and the
// authorship link, one command each.
func seed(t *testing.T) *harness.Result {
	t.Helper()
	s := &harness.Scenario{
		Name:   "seed",
		Schema: libraryDir,
		Steps: []harness.Step{
			{Op: harness.OpAdd, Member: "library.books", Ref: "dune", Props: map[string]any{"title": "Dune", "year": 1965}},
			{Op: harness.OpAdd, Member: "library.authors", Ref: "herbert", Props: map[string]any{"name": "Frank Herbert"}},
			{Op: harness.OpLink, Member: "library.written", Parent: "herbert", Child: "dune"},
		},
	}
	result, err := harness.Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	return result
}

func TestDumpCommand_SQLite(t *testing.T) {
	result := seed(t)
	path := filepath.Join(t.TempDir(), "library.db")
	st := sqlstore.New()
	require.NoError(t, st.Save(context.Background(), path, result.Model))
	require.NoError(t, st.Close())

	out, err := execute(t, "dump", "--path", path, libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "shard: library\n")
	assert.Contains(t, out, "shard: catalog\n")
	assert.Contains(t, out, "    - id: 00000000-0000-0000-0000-000000000001\n      title: Dune\n      year: 1965\n")
	assert.Contains(t, out, "      name: Frank Herbert\n")
	assert.Contains(t, out, "    - parent: 00000000-0000-0000-0000-000000000002\n      child: 00000000-0000-0000-0000-000000000001\n")
	assert.Contains(t, out, "---\n")
}

func TestDumpCommand_YAMLJSON(t *testing.T) {
	result := seed(t)
	dir := t.TempDir()
	require.NoError(t, yamldoc.New().Save(context.Background(), dir, result.Model))

	out, err := execute(t, "dump", "--store", "yaml", "--path", dir, libraryDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   DumpResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Shards, 2)
	for _, shard := range resp.Data.Shards {
		if shard.Name != "library" {
			continue
		}
		assert.Equal(t, map[string]int{"books": 1, "authors": 1, "written": 1, "sequel": 0}, shard.Members)
		assert.Contains(t, shard.Document, "title: Dune")
	}
}

func TestDumpCommand_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.db")
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"nothing stored", []string{"dump", "--path", missing, libraryDir}, ErrCodeNotFound},
		{"unknown store", []string{"dump", "--store", "csv", "--path", missing, libraryDir}, ErrCodeGeneric},
		{"bad schema dir", []string{"dump", "--path", missing, filepath.Join(t.TempDir(), "absent")}, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
