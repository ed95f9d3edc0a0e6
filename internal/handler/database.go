package handler

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/mattjoyce/taskgate/internal/fsutil"
	"github.com/mattjoyce/taskgate/internal/storage"
	"github.com/mattjoyce/taskgate/internal/task"
)

const goldTicketsQuery = `SELECT SUM(units * price) FROM tickets WHERE type = 'Gold'`

func databaseOperation(ctx context.Context, d task.Descriptor) (string, error) {
	op, err := operation(d)
	if err != nil {
		return "", err
	}
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	if op != "sum_gold_tickets" {
		return "", unsupportedOperation(d.Kind, op)
	}

	db, err := storage.OpenSQLite(ctx, in, storage.Options{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer db.Close()

	var total sql.NullFloat64
	if err := db.QueryRowContext(ctx, goldTicketsQuery).Scan(&total); err != nil {
		return "", fmt.Errorf("sum gold tickets: %w", err)
	}
	// SUM over no rows is NULL and is written as 0.
	if err := fsutil.AtomicWrite(out, []byte(storage.FormatValue(total.Float64))); err != nil {
		return "", err
	}
	return SuccessMessage, nil
}

// databaseQuery runs a caller-supplied query against a read-only handle and
// writes the result as CSV with a header row.
func databaseQuery(ctx context.Context, d task.Descriptor) (string, error) {
	in, out, err := paths(d)
	if err != nil {
		return "", err
	}
	query, err := d.String("query")
	if err != nil {
		return "", err
	}
	dbType, err := d.OptionalString("db_type", "sqlite")
	if err != nil {
		return "", err
	}
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "sqlite", "sqlite3":
	default:
		return "", fmt.Errorf("%w: db_type %q is not supported", task.ErrInvalidParameter, dbType)
	}

	db, err := storage.OpenSQLite(ctx, in, storage.Options{ReadOnly: true})
	if err != nil {
		return "", err
	}
	defer db.Close()

	table, err := storage.QueryTable(ctx, db, query)
	if err != nil {
		return "", err
	}
	err = fsutil.AtomicWriteFunc(out, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(table.Columns); err != nil {
			return err
		}
		if err := cw.WriteAll(table.Rows); err != nil {
			return err
		}
		return cw.Error()
	})
	if err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return SuccessMessage, nil
}
