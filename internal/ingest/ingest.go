// Package ingest reads uploaded account workbooks into record tables.
package ingest

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"

	"dlgen/internal/records"
	"dlgen/internal/services"
)

// MaxUploadBytes bounds accepted workbook uploads. Campaign extracts run tens
// of thousands of rows; anything past this is a wrong file.
const MaxUploadBytes = 50 << 20

// ParseWorkbook reads the first sheet of an Excel workbook into a record
// table. The first row is the header; every following row becomes a record
// keyed by header name, with cells trimmed. Header names are upper-cased so
// they line up with the template tokens regardless of how the workbook was
// typed. Fully empty rows are dropped.
func ParseWorkbook(data []byte) (*records.Table, error) {
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "", "empty upload", nil)
	}
	if len(data) > MaxUploadBytes {
		return nil, services.Wrap(services.ErrValidation, "ingest", "", "workbook exceeds upload limit", nil)
	}

	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "open workbook", "not a readable xlsx file", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "", "workbook has no sheets", nil)
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "read sheet "+sheets[0], "", err)
	}
	if len(rows) == 0 {
		return nil, services.Wrap(services.ErrValidation, "ingest", "", "workbook has no header row", nil)
	}

	header := make([]string, 0, len(rows[0]))
	for _, cell := range rows[0] {
		header = append(header, strings.ToUpper(strings.TrimSpace(cell)))
	}

	table := &records.Table{Columns: header}
	for _, cells := range rows[1:] {
		record := make(records.Record, len(header))
		empty := true
		for i, name := range header {
			if name == "" {
				continue
			}
			value := ""
			if i < len(cells) {
				value = strings.TrimSpace(cells[i])
			}
			record[name] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// ValidateForGeneration applies the structural checks a workbook must pass
// before a run starts: required columns present and at least one usable row.
func ValidateForGeneration(table *records.Table) error {
	if err := table.RequireColumns(records.ColumnArea, records.ColumnDLCode); err != nil {
		return err
	}
	if len(table.ValidRows()) == 0 {
		return services.Wrap(services.ErrValidation, "ingest", "",
			"no rows with a customer name; nothing to generate", nil)
	}
	return nil
}
