package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/repository/sqlite"
)

func tableNames(t *testing.T, path string) []string {
	t.Helper()
	db, err := sqlite.Open(sqlite.DefaultConfig(path))
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.SQL().Query("SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func dbVersion(t *testing.T, path string) int {
	t.Helper()
	db, err := sqlite.Open(sqlite.DefaultConfig(path))
	require.NoError(t, err)
	defer db.Close()
	v, err := db.Version(context.Background())
	require.NoError(t, err)
	return v
}

func TestMigrateCommand_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")

	out, err := execute(t, "migrate", "--db", path, libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "migrated from version 0 to 1")
	assert.Equal(t, 1, dbVersion(t, path))
	assert.Len(t, tableNames(t, path), 6, "four library members and two catalog members")

	out, err = execute(t, "migrate", "--db", path, libraryDir)
	require.NoError(t, err)
	assert.Contains(t, out, "is up to date (version 1)")
}

func TestMigrateCommand_UpgradesVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")
	v1 := writeSchema(t, `shard: inventory: collection: items: {entity: "item", fields: name: string}`)
	v2 := writeSchema(t, `
version: 2
shard: inventory: {
	collection: items: {entity: "item", fields: name: string}
	collection: bins: {entity: "bin", fields: label: string}
	relation: stored: {parent: "bin", child: "item", cardinality: "one-to-many"}
}
`)

	_, err := execute(t, "migrate", "--db", path, v1)
	require.NoError(t, err)
	assert.Len(t, tableNames(t, path), 1)

	out, err := execute(t, "migrate", "--db", path, v2, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string        `json:"status"`
		Data   MigrateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, MigrateResult{Database: path, From: 1, To: 2, Applied: 1}, resp.Data)
	assert.Len(t, tableNames(t, path), 3)

	out, err = execute(t, "migrate", "--db", path, v1)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "database is at version 2, newer than schema version 1")
}

func TestMigrateCommand_InvalidSchema(t *testing.T) {
	dir := writeSchema(t, `shard: a: {}`)
	out, err := execute(t, "migrate", "--db", filepath.Join(t.TempDir(), "x.db"), dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeInvalidSchema+"]")
}
