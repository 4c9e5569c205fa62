package extract

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/fieldmap"
	_ "modernc.org/sqlite"
)

// maxRowsPerTable caps how much of a single legacy table is imported. Legacy
// databases routinely carry years of unrelated rows.
const maxRowsPerTable = 1000

// SQLiteExtractor enumerates the declared tables of an embedded database and
// runs every row through the shared field mapper. Table and row identity is
// retained as extraction provenance.
type SQLiteExtractor struct{}

func (e *SQLiteExtractor) FormatLabel() string { return "SQLite Database" }

func (e *SQLiteExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{FormatLabel: e.FormatLabel()}

	path := in.Path
	if path == "" {
		// Inner archive files arrive as bytes only; the driver needs a path.
		tmp, err := os.CreateTemp("", "import-*.sqlite")
		if err != nil {
			return nil, fmt.Errorf("failed to stage database file: %w", err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(in.Data); err != nil {
			tmp.Close()
			return nil, fmt.Errorf("failed to stage database file: %w", err)
		}
		tmp.Close()
		path = tmp.Name()
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tables, err := tableNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: database declares no tables", domain.ErrNoRecords)
	}

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.extractTable(ctx, db, table, in.FileName, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("table %q: %v", table, err))
		}
	}

	return res, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (e *SQLiteExtractor) extractTable(ctx context.Context, db *sql.DB, table, sourceFile string, res *Result) error {
	query := fmt.Sprintf(`SELECT * FROM %q LIMIT %d`, table, maxRowsPerTable)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	rowNum := 0
	for rows.Next() {
		rowNum++
		if err := rows.Scan(ptrs...); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("table %q row %d: %v", table, rowNum, err))
			continue
		}

		raw := make(map[string]string, len(cols))
		for i, col := range cols {
			if s, ok := columnString(vals[i]); ok {
				raw[col] = s
			}
		}

		keepRecord(res, fieldmap.BuildRecord(raw), sourceFile, table)
	}
	return rows.Err()
}

// columnString renders a scanned column value as a string for the field
// mapper. NULL columns are absent, not empty strings.
func columnString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case []byte:
		return string(t), true
	case string:
		return t, true
	default:
		return fmt.Sprintf("%v", t), true
	}
}
