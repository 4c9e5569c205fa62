// Package detect classifies legacy source files into one of the supported
// import formats before an extraction strategy is chosen.
package detect

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/terrafusion/import-service/internal/domain"
)

// extensionTable is the primary detection signal: a case-insensitive exact
// match on the file extension.
var extensionTable = map[string]domain.Format{
	".sqlite":  domain.FormatEmbeddedDB,
	".sqlite3": domain.FormatEmbeddedDB,
	".db":      domain.FormatEmbeddedDB,
	".csv":     domain.FormatDelimitedText,
	".tsv":     domain.FormatDelimitedText,
	".txt":     domain.FormatDelimitedText,
	".xml":     domain.FormatMarkup,
	".zip":     domain.FormatArchive,
	".sql":     domain.FormatSQLScript,
}

var (
	magicSQLite = []byte("SQLite format 3\x00")
	magicZip    = []byte("PK\x03\x04")
	magicXML    = []byte("<?xml")
)

// Detect classifies a file by name and, when the extension is ambiguous or
// absent, by its leading bytes. It is total: garbage input yields
// FormatUnknown, never an error. Callers must treat FormatUnknown as a
// terminal, non-retryable condition for that file.
func Detect(name string, head []byte) domain.Format {
	ext := strings.ToLower(filepath.Ext(name))
	if f, ok := extensionTable[ext]; ok {
		return f
	}
	return sniff(head)
}

// sniff inspects the leading bytes for known magic sequences.
func sniff(head []byte) domain.Format {
	switch {
	case bytes.HasPrefix(head, magicSQLite):
		return domain.FormatEmbeddedDB
	case bytes.HasPrefix(head, magicZip):
		return domain.FormatArchive
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), magicXML):
		return domain.FormatMarkup
	case looksLikeSQL(head):
		return domain.FormatSQLScript
	}
	return domain.FormatUnknown
}

// looksLikeSQL checks whether the first non-comment line starts with a
// statement keyword common to database dumps.
func looksLikeSQL(head []byte) bool {
	for _, line := range strings.Split(string(head), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		upper := strings.ToUpper(trimmed)
		return strings.HasPrefix(upper, "INSERT ") ||
			strings.HasPrefix(upper, "CREATE ") ||
			strings.HasPrefix(upper, "BEGIN")
	}
	return false
}

// FormatInfo describes one supported format for the formats endpoint.
type FormatInfo struct {
	Format      domain.Format `json:"format"`
	Extensions  []string      `json:"extensions"`
	Description string        `json:"description"`
}

// SupportedFormats returns the static table of supported source formats.
func SupportedFormats() []FormatInfo {
	return []FormatInfo{
		{domain.FormatEmbeddedDB, []string{".sqlite", ".sqlite3", ".db"}, "SQLite database exported by legacy appraisal tools"},
		{domain.FormatDelimitedText, []string{".csv", ".tsv", ".txt"}, "Delimited text with a header row"},
		{domain.FormatMarkup, []string{".xml"}, "Structured XML export"},
		{domain.FormatArchive, []string{".zip"}, "Zip archive of importable files"},
		{domain.FormatSQLScript, []string{".sql"}, "SQL dump with INSERT statements"},
	}
}
