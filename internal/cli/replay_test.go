package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/harness"
	"github.com/roach88/tessera/internal/journal"
)

// writeJournal appends the changes of every traced step to a new journal.
func writeJournal(t *testing.T, trace []harness.TraceEvent) string {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.Open(journal.DefaultConfig(dir))
	require.NoError(t, err)
	for _, event := range trace {
		if event.Changes == nil {
			continue
		}
		_, err := j.Append(event.Changes)
		require.NoError(t, err)
	}
	require.NoError(t, j.Close())
	return dir
}

func TestReplayCommand_Text(t *testing.T) {
	dir := writeJournal(t, seed(t).Trace)

	out, err := execute(t, "replay", "--journal", dir, libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ replayed 3 entries (last seq 3)")
	assert.Contains(t, out, "  library.books: 1\n")
	assert.Contains(t, out, "  library.written: 1\n")
	assert.Contains(t, out, "  catalog.shelves: 0\n")
	assert.NotContains(t, out, "saved to")
}

func TestReplayCommand_SavesToStore(t *testing.T) {
	dir := writeJournal(t, seed(t).Trace)
	docs := t.TempDir()

	out, err := execute(t, "replay", "--journal", dir, "--store", "yaml", "--path", docs, libraryDir, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 3, resp.Data.Entries)
	assert.Equal(t, uint64(3), resp.Data.LastSeq)
	assert.Equal(t, docs, resp.Data.Saved)
	assert.Equal(t, 1, resp.Data.Members["library.authors"])

	out, err = execute(t, "dump", "--store", "yaml", "--path", docs, libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "title: Dune")
	assert.Contains(t, out, "name: Frank Herbert")
}

func TestReplayCommand_EntryDoesNotApply(t *testing.T) {
	trace := seed(t).Trace
	// The first add twice: the second is a duplicate key.
	dir := writeJournal(t, []harness.TraceEvent{trace[0], trace[0]})

	out, err := execute(t, "replay", "--journal", dir, libraryDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeReplay+"]: replay stopped after 1 entries")
	assert.Contains(t, err.Error(), "DUPLICATE_KEY")
}

func TestReplayCommand_MissingJournal(t *testing.T) {
	out, err := execute(t, "replay", "--journal", filepath.Join(t.TempDir(), "absent"), libraryDir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}
