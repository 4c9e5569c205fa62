// Package extract implements one extraction strategy per supported source
// format. All strategies share the same contract: produce normalized records
// plus per-row errors and warnings, never aborting the whole file because a
// single row or table failed to parse.
package extract

import (
	"context"
	"fmt"

	"github.com/terrafusion/import-service/internal/domain"
)

// Input carries the file under extraction. Data is always populated; Path is
// set when the file exists on disk (the embedded-db extractor prefers it).
type Input struct {
	FileName string
	Path     string
	Data     []byte
}

// Result is the outcome of one extraction run. Errors are row/table-level
// parse failures; they never abort extraction of the remaining input.
type Result struct {
	Records     []domain.CompRecord
	Errors      []string
	Warnings    []string
	FormatLabel string
}

// Extractor is one format-specific extraction strategy.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*Result, error)
	FormatLabel() string
}

// ForFormat returns the extraction strategy for a detected format.
func ForFormat(f domain.Format) (Extractor, error) {
	switch f {
	case domain.FormatDelimitedText:
		return &CSVExtractor{}, nil
	case domain.FormatEmbeddedDB:
		return &SQLiteExtractor{}, nil
	case domain.FormatMarkup:
		return &XMLExtractor{}, nil
	case domain.FormatArchive:
		return &ArchiveExtractor{}, nil
	case domain.FormatSQLScript:
		return &SQLScriptExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: no extractor for format %q", domain.ErrUnknownFormat, f)
	}
}

// keepRecord applies the minimum-identity filter and stamps provenance.
// Records failing the filter are dropped silently; they are almost always
// non-property rows (summaries, footers, lookup tables).
func keepRecord(res *Result, rec domain.CompRecord, sourceFile, sourceTable string) {
	if !rec.HasMinimumIdentity() {
		return
	}
	rec.SourceFile = sourceFile
	rec.SourceTable = sourceTable
	res.Records = append(res.Records, rec)
}
