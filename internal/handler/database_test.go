package handler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/taskgate/internal/storage"
	"github.com/mattjoyce/taskgate/internal/task"
)

func seedTicketDB(t *testing.T, path string, rows ...string) string {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), path, storage.Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE tickets (type TEXT, units INTEGER, price REAL)`)
	require.NoError(t, err)
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO tickets VALUES ` + r)
		require.NoError(t, err)
	}
	return path
}

func TestSumGoldTickets(t *testing.T) {
	dir := t.TempDir()
	in := seedTicketDB(t, filepath.Join(dir, "tickets.db"), `('Gold', 2, 10.5)`, `('Silver', 3, 7)`, `('Gold', 1, 4)`)
	out := filepath.Join(dir, "total.txt")

	_, err := databaseOperation(context.Background(), task.NewDescriptor(task.KindDatabaseOperation, map[string]any{
		"operation": "sum_gold_tickets", "input": in, "output": out,
	}))
	require.NoError(t, err)
	assert.Equal(t, "25", readFile(t, out))
}

func TestSumGoldTicketsNoRows(t *testing.T) {
	dir := t.TempDir()
	in := seedTicketDB(t, filepath.Join(dir, "tickets.db"), `('Silver', 3, 7)`)
	out := filepath.Join(dir, "total.txt")

	_, err := databaseOperation(context.Background(), task.NewDescriptor(task.KindDatabaseOperation, map[string]any{
		"operation": "sum_gold_tickets", "input": in, "output": out,
	}))
	require.NoError(t, err)
	assert.Equal(t, "0", readFile(t, out))
}

func TestDatabaseOperationErrors(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "total.txt")

	_, err := databaseOperation(context.Background(), task.NewDescriptor(task.KindDatabaseOperation, map[string]any{
		"operation": "sum_gold_tickets", "input": filepath.Join(dir, "missing.db"), "output": out,
	}))
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "missing.db"), "read-only open must not create the database")

	_, err = databaseOperation(context.Background(), task.NewDescriptor(task.KindDatabaseOperation, map[string]any{
		"operation": "drop_tables", "input": filepath.Join(dir, "x.db"), "output": out,
	}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)
}

func TestDatabaseQueryWritesCSV(t *testing.T) {
	dir := t.TempDir()
	in := seedTicketDB(t, filepath.Join(dir, "tickets.db"), `('Gold', 2, 10.5)`, `('Silver, Plus', 3, 7)`)
	out := filepath.Join(dir, "result.csv")

	_, err := databaseQuery(context.Background(), task.NewDescriptor(task.KindDatabaseQuery, map[string]any{
		"db_type": "SQLite",
		"input":   in,
		"output":  out,
		"query":   `SELECT type, units FROM tickets ORDER BY units`,
	}))
	require.NoError(t, err)
	assert.Equal(t, "type,units\nGold,2\n\"Silver, Plus\",3\n", readFile(t, out))
}

func TestDatabaseQueryIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	in := seedTicketDB(t, filepath.Join(dir, "tickets.db"), `('Gold', 2, 10.5)`)

	_, err := databaseQuery(context.Background(), task.NewDescriptor(task.KindDatabaseQuery, map[string]any{
		"input": in, "output": filepath.Join(dir, "o.csv"), "query": `DELETE FROM tickets`,
	}))
	assert.Error(t, err)

	db, err := storage.OpenSQLite(context.Background(), in, storage.Options{ReadOnly: true})
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestDatabaseQueryRejectsDuckDB(t *testing.T) {
	dir := t.TempDir()
	_, err := databaseQuery(context.Background(), task.NewDescriptor(task.KindDatabaseQuery, map[string]any{
		"db_type": "duckdb", "input": filepath.Join(dir, "a.duckdb"), "output": filepath.Join(dir, "o.csv"), "query": "SELECT 1",
	}))
	assert.ErrorIs(t, err, task.ErrInvalidParameter)
}
