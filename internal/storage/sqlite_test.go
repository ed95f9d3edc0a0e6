package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTickets(t *testing.T, path string) {
	t.Helper()
	db, err := OpenSQLite(context.Background(), path, Options{})
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE tickets (type TEXT, units INTEGER, price REAL, note TEXT)`,
		`INSERT INTO tickets VALUES ('Gold', 2, 10.5, 'a'), ('Silver', 1, 5, NULL), ('Gold', 1, 4, 'c')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
}

func TestOpenSQLiteCreatesFile(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "tickets.db")
	db, err := OpenSQLite(context.Background(), dbPath, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Ping())
}

func TestOpenSQLiteReadOnly(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	seedTickets(t, dbPath)

	db, err := OpenSQLite(context.Background(), dbPath, Options{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`DELETE FROM tickets`)
	assert.Error(t, err, "read-only handle must refuse writes")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestOpenSQLiteReadOnlyMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "missing.db"), Options{ReadOnly: true})
	assert.Error(t, err)

	_, err = OpenSQLite(context.Background(), t.TempDir(), Options{ReadOnly: true})
	assert.Error(t, err)
}

func TestQueryTable(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	seedTickets(t, dbPath)
	db, err := OpenSQLite(context.Background(), dbPath, Options{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	table, err := QueryTable(context.Background(), db, `SELECT type, units, price, note FROM tickets ORDER BY rowid`)
	require.NoError(t, err)

	assert.Equal(t, []string{"type", "units", "price", "note"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"Gold", "2", "10.5", "a"}, table.Rows[0])
	assert.Equal(t, []string{"Silver", "1", "5", ""}, table.Rows[1])

	_, err = QueryTable(context.Background(), db, `SELECT * FROM nope`)
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "42", FormatValue(int64(42)))
	assert.Equal(t, "25", FormatValue(float64(25)))
	assert.Equal(t, "0.1", FormatValue(0.1))
	assert.Equal(t, "true", FormatValue(true))
}
