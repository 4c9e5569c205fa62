package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/terrafusion/import-service/internal/pipeline/fieldmap"
)

// SQLScriptExtractor pulls records out of database dumps by parsing INSERT
// statements. Anything that is not an INSERT (DDL, comments, transaction
// control) is ignored; an INSERT that cannot be parsed is a per-statement
// error and extraction continues.
type SQLScriptExtractor struct{}

func (e *SQLScriptExtractor) FormatLabel() string { return "SQL Script" }

func (e *SQLScriptExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{FormatLabel: e.FormatLabel()}

	stmts := splitStatements(string(in.Data))
	for i, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		trimmed := strings.TrimSpace(stmt)
		if !hasPrefixFold(trimmed, "INSERT") {
			continue
		}

		table, cols, rows, err := parseInsert(trimmed)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("statement %d: %v", i+1, err))
			continue
		}

		for _, row := range rows {
			raw := make(map[string]string, len(cols))
			for j, col := range cols {
				if j < len(row) && row[j] != "" {
					raw[col] = row[j]
				}
			}
			keepRecord(res, fieldmap.BuildRecord(raw), in.FileName, table)
		}
	}

	return res, nil
}

// splitStatements breaks a script on semicolons, respecting single-quoted
// string literals and line comments.
func splitStatements(script string) []string {
	var (
		stmts    []string
		sb       strings.Builder
		inString bool
	)
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inString:
			sb.WriteByte(c)
			if c == '\'' {
				// '' is an escaped quote inside a literal.
				if i+1 < len(script) && script[i+1] == '\'' {
					sb.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			}
		case c == '\'':
			inString = true
			sb.WriteByte(c)
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			sb.WriteByte('\n')
		case c == ';':
			stmts = append(stmts, sb.String())
			sb.Reset()
		default:
			sb.WriteByte(c)
		}
	}
	if strings.TrimSpace(sb.String()) != "" {
		stmts = append(stmts, sb.String())
	}
	return stmts
}

// parseInsert parses `INSERT INTO table (cols...) VALUES (...), (...)`.
func parseInsert(stmt string) (table string, cols []string, rows [][]string, err error) {
	rest, ok := cutPrefixFold(stmt, "INSERT")
	if !ok {
		return "", nil, nil, fmt.Errorf("not an INSERT statement")
	}
	rest = strings.TrimSpace(rest)
	if rest, ok = cutPrefixFold(rest, "INTO"); !ok {
		return "", nil, nil, fmt.Errorf("INSERT without INTO")
	}
	rest = strings.TrimSpace(rest)

	open := strings.IndexByte(rest, '(')
	if open < 0 {
		return "", nil, nil, fmt.Errorf("INSERT without a column list; cannot map values")
	}
	table = unquoteIdent(strings.TrimSpace(rest[:open]))
	if table == "" {
		return "", nil, nil, fmt.Errorf("missing table name")
	}

	closeIdx := strings.IndexByte(rest[open:], ')')
	if closeIdx < 0 {
		return "", nil, nil, fmt.Errorf("unterminated column list")
	}
	for _, c := range strings.Split(rest[open+1:open+closeIdx], ",") {
		cols = append(cols, unquoteIdent(strings.TrimSpace(c)))
	}

	rest = strings.TrimSpace(rest[open+closeIdx+1:])
	if rest, ok = cutPrefixFold(rest, "VALUES"); !ok {
		return "", nil, nil, fmt.Errorf("INSERT without VALUES")
	}

	rows, err = parseValueTuples(rest)
	if err != nil {
		return "", nil, nil, err
	}
	for _, row := range rows {
		if len(row) != len(cols) {
			return "", nil, nil, fmt.Errorf("value count %d does not match column count %d", len(row), len(cols))
		}
	}
	return table, cols, rows, nil
}

// parseValueTuples scans one or more parenthesized tuples. NULL values
// become empty strings so the field mapper treats them as absent.
func parseValueTuples(s string) ([][]string, error) {
	var (
		rows     [][]string
		current  []string
		sb       strings.Builder
		inString bool
		inTuple  bool
		depth    int
	)
	flushValue := func() {
		v := strings.TrimSpace(sb.String())
		sb.Reset()
		if strings.EqualFold(v, "NULL") {
			v = ""
		}
		current = append(current, v)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					sb.WriteByte('\'')
					i++
				} else {
					inString = false
				}
			} else {
				sb.WriteByte(c)
			}
		case c == '\'':
			inString = true
		case c == '(':
			depth++
			if depth == 1 {
				inTuple = true
				current = nil
				continue
			}
			sb.WriteByte(c)
		case c == ')':
			depth--
			if depth == 0 {
				flushValue()
				rows = append(rows, current)
				inTuple = false
				continue
			}
			sb.WriteByte(c)
		case c == ',' && inTuple && depth == 1:
			flushValue()
		case inTuple:
			sb.WriteByte(c)
		}
	}
	if inString || depth != 0 {
		return nil, fmt.Errorf("unterminated VALUES clause")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("VALUES clause holds no tuples")
	}
	return rows, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if hasPrefixFold(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func unquoteIdent(s string) string {
	return strings.Trim(s, "\"`[]")
}
