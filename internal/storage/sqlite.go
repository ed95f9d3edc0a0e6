package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Options tune how a database file is opened.
type Options struct {
	// ReadOnly opens an existing file with mode=ro and query_only, so a
	// user-supplied query cannot modify the database.
	ReadOnly bool
}

// OpenSQLite opens the SQLite database at path. Writable opens create the
// file (and its directory) when missing; read-only opens require it to exist.
func OpenSQLite(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}

	dsn := path
	if opts.ReadOnly {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("open sqlite: %s is a directory", path)
		}
		dsn = (&url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro"}).String()
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{"PRAGMA busy_timeout = 5000;"}
	if opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON;")
	} else {
		pragmas = append(pragmas, "PRAGMA foreign_keys = ON;")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Table is a fully materialized query result rendered as text.
type Table struct {
	Columns []string
	Rows    [][]string
}

// QueryTable runs query and renders every value as text. NULL becomes the
// empty string; float values use the shortest exact representation.
func QueryTable(ctx context.Context, db *sql.DB, query string, args ...any) (Table, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Table{}, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Table{}, fmt.Errorf("read columns: %w", err)
	}

	t := Table{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, fmt.Errorf("scan row: %w", err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = FormatValue(v)
		}
		t.Rows = append(t.Rows, record)
	}
	if err := rows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate rows: %w", err)
	}
	return t, nil
}

// FormatValue renders a value scanned from the sqlite driver.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
