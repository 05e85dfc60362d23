package views

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// ReadRowFile parses a view's CSV row file using the view's column mapping.
// The first record is the header; data rows are numbered from 2 to line up
// with how operators read the file. A configured column missing from the
// header leaves that field empty on every row (and the row is later skipped
// by per-row validation).
func ReadRowFile(path string, cfg Config) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open row file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse row file: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		index[strings.TrimSpace(strings.ToLower(h))] = i
	}
	field := func(record []string, column string) string {
		i, ok := index[strings.TrimSpace(strings.ToLower(column))]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	_, idColumn, err := cfg.IdentifierKind()
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		rows = append(rows, Row{
			Num:        i + 2,
			Identifier: field(record, idColumn),
			Side:       field(record, cfg.Side),
			Quantity:   field(record, cfg.Quantity),
			Label:      field(record, cfg.RFQLabel),
			ATS:        field(record, cfg.ATS),
		})
	}
	return rows, nil
}
