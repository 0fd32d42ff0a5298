// Package ingest normalizes Google Search Console CSV exports into page
// records. The parser is deliberately forgiving: exports vary between
// "Page" and "Top pages" headers, metric cells may be blank or
// thousand-separated, and extra columns (CTR, Position) are ignored.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"searchlens.app/analyzer/internal/model"
)

// FormatError is returned when the CSV header has no recognizable page
// column. Metric columns are optional and never trigger it.
type FormatError struct {
	Missing []string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognized export format: missing column(s) %s", strings.Join(e.Missing, ", "))
}

// Normalize parses a Search Console performance export. Rows with an
// empty page URL are dropped; all other rows are kept in file order,
// duplicates included. Only the page column is required; absent or
// unparsable metric cells count as zero.
func Normalize(r io.Reader) ([]model.PageRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // exports sometimes carry ragged trailer rows
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, &FormatError{Missing: []string{"page"}}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	pageIdx, clicksIdx, imprIdx := -1, -1, -1
	for i, col := range header {
		switch normalizeHeader(col) {
		case "page", "top pages":
			if pageIdx < 0 {
				pageIdx = i
			}
		case "clicks":
			if clicksIdx < 0 {
				clicksIdx = i
			}
		case "impressions":
			if imprIdx < 0 {
				imprIdx = i
			}
		}
	}

	if pageIdx < 0 {
		return nil, &FormatError{Missing: []string{"page"}}
	}

	records := []model.PageRecord{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		page := strings.TrimSpace(field(row, pageIdx))
		if page == "" {
			continue
		}

		records = append(records, model.PageRecord{
			Page:        page,
			Clicks:      parseMetric(field(row, clicksIdx)),
			Impressions: parseMetric(field(row, imprIdx)),
		})
	}

	return records, nil
}

func normalizeHeader(col string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
}

// field tolerates short rows and columns absent from the header.
func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseMetric coerces a metric cell to an int. Thousand separators are
// stripped first; anything still unparsable counts as zero.
func parseMetric(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Some exports format metrics as floats ("12.0").
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
		return 0
	}
	return n
}
