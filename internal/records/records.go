package records

import (
	"sort"
	"strings"

	"dlgen/internal/services"
)

// Column names the pipeline depends on. Any other columns ride along as
// free-form placeholder values.
const (
	ColumnArea      = "FINAL_AREA"
	ColumnDLCode    = "DL_CODE"
	ColumnName      = "LEADS_CHNAME"
	ColumnAmount    = "AMOUNT"
	ColumnAccountNo = "LEADS_ACCTNO"
)

// Record is one account row from an uploaded workbook: column name to cell
// text, both already trimmed.
type Record map[string]string

// Area returns the record's collection area, empty when unset.
func (r Record) Area() string { return r[ColumnArea] }

// DLCode returns the record's demand letter code.
func (r Record) DLCode() string { return r[ColumnDLCode] }

// Valid reports whether the record carries a customer name. Nameless rows are
// export artifacts and are skipped rather than failing a run.
func (r Record) Valid() bool {
	return strings.TrimSpace(r[ColumnName]) != ""
}

// Table is an ordered record set sharing one header row.
type Table struct {
	Columns []string
	Rows    []Record
}

// RequireColumns fails when any of the named columns is absent from the
// header, listing every missing one so the user can fix the workbook in one
// pass.
func (t *Table) RequireColumns(names ...string) error {
	present := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		present[col] = struct{}{}
	}
	var missing []string
	for _, name := range names {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrValidation, "records", "",
			"missing required columns: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// ValidRows returns the rows that carry a customer name, preserving order.
func (t *Table) ValidRows() []Record {
	valid := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		if row.Valid() {
			valid = append(valid, row)
		}
	}
	return valid
}

// GroupByArea partitions valid rows by collection area, preserving row order
// within each group. Areas returns the group keys sorted so output file sets
// are deterministic across runs.
func GroupByArea(rows []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, row := range rows {
		area := strings.TrimSpace(row.Area())
		if area == "" {
			area = "UNASSIGNED"
		}
		groups[area] = append(groups[area], row)
	}
	return groups
}

// Areas returns the sorted keys of an area grouping.
func Areas(groups map[string][]Record) []string {
	areas := make([]string, 0, len(groups))
	for area := range groups {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	return areas
}

// Paginate slices rows into fixed-size pages; the final page may be short.
func Paginate(rows []Record, pageSize int) [][]Record {
	if pageSize <= 0 || len(rows) == 0 {
		return nil
	}
	pages := make([][]Record, 0, (len(rows)+pageSize-1)/pageSize)
	for start := 0; start < len(rows); start += pageSize {
		end := start + pageSize
		if end > len(rows) {
			end = len(rows)
		}
		pages = append(pages, rows[start:end])
	}
	return pages
}
