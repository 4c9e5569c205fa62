package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/terrafusion/import-service/internal/pipeline/fieldmap"
)

// XMLExtractor treats every repeated child element under the document root
// as one record. Attribute names and child-element names are the raw field
// keys handed to the field mapper.
type XMLExtractor struct{}

func (e *XMLExtractor) FormatLabel() string { return "Structured Markup" }

func (e *XMLExtractor) Extract(ctx context.Context, in Input) (*Result, error) {
	res := &Result{FormatLabel: e.FormatLabel()}

	dec := xml.NewDecoder(bytes.NewReader(in.Data))
	dec.Strict = false

	depth := 0
	recordNum := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("markup parse error: %v", err))
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth != 2 {
				continue
			}
			recordNum++
			raw, err := decodeRecordElement(dec, t)
			depth-- // decodeRecordElement consumes the matching end tag
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("record element %d (<%s>): %v", recordNum, t.Name.Local, err))
				continue
			}
			keepRecord(res, fieldmap.BuildRecord(raw), in.FileName, t.Name.Local)
		case xml.EndElement:
			depth--
		}
	}

	return res, nil
}

// decodeRecordElement reads one record element to its end tag, flattening
// attributes and child-element text into a raw field map.
func decodeRecordElement(dec *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	raw := make(map[string]string)
	for _, attr := range start.Attr {
		raw[attr.Name.Local] = attr.Value
	}

	var (
		depth    = 1
		fieldKey string
		text     strings.Builder
	)
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				fieldKey = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth >= 2 && fieldKey != "" {
				text.Write(t)
			}
		case xml.EndElement:
			depth--
			if depth == 1 && fieldKey != "" {
				if v := strings.TrimSpace(text.String()); v != "" {
					raw[fieldKey] = v
				}
				fieldKey = ""
			}
		}
	}
	return raw, nil
}
