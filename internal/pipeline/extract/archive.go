package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/terrafusion/import-service/internal/domain"
	"github.com/terrafusion/import-service/internal/pipeline/detect"
)

// Nested-archive recursion limit. Deeper nesting than this is almost
// certainly a malformed or hostile upload.
const maxArchiveDepth = 3

// Inner files larger than this are skipped with a warning instead of being
// buffered into memory.
const maxInnerFileBytes = 256 << 20

// ArchiveExtractor unpacks a zip archive and redispatches every inner file
// through format detection to the matching extractor.
type ArchiveExtractor struct {
	depth int
}

func (e *ArchiveExtractor) FormatLabel() string { return "Zip Archive" }

func (e *ArchiveExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{FormatLabel: e.FormatLabel()}

	zr, err := zip.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if f.UncompressedSize64 > maxInnerFileBytes {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: inner file too large, skipped", f.Name))
			continue
		}

		data, err := readInnerFile(f)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}

		name := filepath.Base(f.Name)
		format := detect.Detect(name, head(data))
		if format == domain.FormatUnknown {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unrecognized format, skipped", name))
			continue
		}
		if format == domain.FormatArchive && e.depth+1 >= maxArchiveDepth {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: archive nesting too deep, skipped", name))
			continue
		}

		inner, err := e.innerExtractor(format)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		innerRes, err := inner.Extract(ctx, Input{FileName: name, Data: data})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		mergeResult(res, innerRes, name)
	}

	return res, nil
}

func (e *ArchiveExtractor) innerExtractor(format domain.Format) (Extractor, error) {
	if format == domain.FormatArchive {
		return &ArchiveExtractor{depth: e.depth + 1}, nil
	}
	return ForFormat(format)
}

func readInnerFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open inner file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read inner file: %w", err)
	}
	return data, nil
}

func mergeResult(dst, src *Result, innerName string) {
	dst.Records = append(dst.Records, src.Records...)
	for _, e := range src.Errors {
		dst.Errors = append(dst.Errors, innerName+": "+e)
	}
	for _, w := range src.Warnings {
		dst.Warnings = append(dst.Warnings, innerName+": "+w)
	}
}

func head(data []byte) []byte {
	if len(data) > 512 {
		return data[:512]
	}
	return data
}
