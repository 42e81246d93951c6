package ingest

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Extractor turns one document's raw bytes into plain text.
type Extractor func(data []byte) (string, error)

// Extractors maps lowercase file extensions to their text extractors.
// Unknown extensions are skipped at listing time, not treated as errors.
var Extractors = map[string]Extractor{
	".pdf":  extractPDF,
	".xlsx": extractXLSX,
	".txt":  extractPlain,
	".md":   extractPlain,
}

// ExtractorFor returns the extractor for a document key, or false if the
// format is not supported.
func ExtractorFor(key string) (Extractor, bool) {
	ex, ok := Extractors[strings.ToLower(path.Ext(key))]
	return ex, ok
}

// extractPDF extracts the plain text of every page. Pages that fail to
// parse are skipped; a fully unreadable PDF is an error.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(text)
		}
	}
	return b.String(), nil
}

// extractXLSX renders every sheet as text: a sheet banner followed by one
// line per row with non-empty cells joined by " | ".
func extractXLSX(data []byte) (string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer wb.Close()

	var b strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[SHEET] %s", sheet)
		for _, row := range rows {
			var cells []string
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				b.WriteString("\n")
				b.WriteString(strings.Join(cells, " | "))
			}
		}
	}
	return b.String(), nil
}

func extractPlain(data []byte) (string, error) {
	return string(data), nil
}
