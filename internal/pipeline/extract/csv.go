package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/terrafusion/import-service/internal/pipeline/fieldmap"
)

// Content types a delimited file can hold, decided by header inspection.
const (
	ContentProperties  = "properties"
	ContentComparables = "comparables"
	ContentReports     = "reports"
	ContentMixed       = "mixed"
	ContentUnknown     = "unknown"
)

// Header vocabularies used to classify a file's content type. Matching is
// done on headers normalized to lower_snake form.
var (
	propertyVocab = []string{
		"parcel_id", "owner", "owner_name", "assessed_value", "land_value",
		"year_built", "lot_size", "property_type", "zoning",
	}
	comparableVocab = []string{
		"sale_price", "sale_date", "sold_price", "gla", "sq_ft", "sqft",
		"distance", "price_per_sqft", "comp_number",
	}
	reportVocab = []string{
		"report_id", "appraiser", "appraised_value", "effective_date",
		"report_type", "client", "order_number",
	}
)

// Columns that can explicitly tag a row as the subject property.
var roleColumns = []string{"role", "record_type", "comp_type", "Role", "Record Type"}

// CSVExtractor parses delimited text with a header row. Headers are resolved
// through the shared field mapper so alias lists stay in one place.
type CSVExtractor struct{}

func (e *CSVExtractor) FormatLabel() string { return "Delimited Text" }

func (e *CSVExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{FormatLabel: e.FormatLabel()}

	reader := csv.NewReader(bytes.NewReader(in.Data))
	reader.Comma = sniffDelimiter(in.Data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\uFEFF"))
	}

	contentType := ClassifyHeaders(header)
	if contentType == ContentUnknown {
		res.Warnings = append(res.Warnings,
			"headers match no known vocabulary; treating rows as comparables")
	}

	rowNum := 1
	firstDataRow := true
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		raw := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				raw[h] = row[i]
			}
		}

		rec := fieldmap.BuildRecord(raw)
		if contentType == ContentMixed {
			// Keyed to the first parsed row, not the first kept record: a
			// dropped first row must not promote row two to subject.
			rec.Role = rowRole(raw, firstDataRow)
		}
		firstDataRow = false
		keepRecord(res, rec, in.FileName, "")
	}

	return res, nil
}

// ClassifyHeaders decides the content type of a delimited file by counting
// header matches against the three fixed vocabularies. All three present, or
// a tie for the most matches, resolves to mixed; no matches at all resolves
// to unknown rather than mixed.
func ClassifyHeaders(header []string) string {
	normalized := make(map[string]bool, len(header))
	for _, h := range header {
		normalized[normalizeHeader(h)] = true
	}

	counts := map[string]int{
		ContentProperties:  countMatches(normalized, propertyVocab),
		ContentComparables: countMatches(normalized, comparableVocab),
		ContentReports:     countMatches(normalized, reportVocab),
	}

	if counts[ContentProperties] > 0 && counts[ContentComparables] > 0 && counts[ContentReports] > 0 {
		return ContentMixed
	}

	best, bestCount, tied := "", 0, false
	for _, ct := range []string{ContentProperties, ContentComparables, ContentReports} {
		switch {
		case counts[ct] > bestCount:
			best, bestCount, tied = ct, counts[ct], false
		case counts[ct] == bestCount && counts[ct] > 0:
			tied = true
		}
	}

	if bestCount == 0 {
		return ContentUnknown
	}
	if tied {
		return ContentMixed
	}
	return best
}

func countMatches(normalized map[string]bool, vocab []string) int {
	n := 0
	for _, v := range vocab {
		if normalized[v] {
			n++
		}
	}
	return n
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// rowRole resolves a mixed-file row's role: an explicit "Subject" tag wins,
// otherwise the first row is the subject and the rest are comparables.
func rowRole(raw map[string]string, isFirstRow bool) string {
	if v, ok := fieldmap.Resolve(raw, roleColumns); ok {
		if strings.EqualFold(v, "subject") {
			return "subject"
		}
		return "comparable"
	}
	if isFirstRow {
		return "subject"
	}
	return "comparable"
}

// sniffDelimiter picks tab over comma when the header line is tab-heavy.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{'\t'}) > bytes.Count(line, []byte{','}) {
		return '\t'
	}
	return ','
}
