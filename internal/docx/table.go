package docx

import "fmt"

// Manifest templates repeat one token set per display slot, so a global
// replace would fill every slot with the first record. These helpers scope
// substitution to a single top-level row of the document's main table.

// MainTableRowCount returns the number of top-level rows in the first table of
// the document body. Rows belonging to tables nested inside cells are not
// counted.
func (d *Document) MainTableRowCount() (int, error) {
	_, rows, err := d.mainTableRows()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FillTableRow substitutes tokens inside the nth (0-based) top-level row of
// the main table, including any tables nested within that row.
func (d *Document) FillTableRow(index int, values map[string]string) error {
	return d.rewriteTableRow(index, func(row string) string {
		return replaceInContent(row, values)
	})
}

// ClearTableRow blanks every remaining token inside the nth top-level row.
// Applied to trailing slots on the final manifest page.
func (d *Document) ClearTableRow(index int) error {
	return d.rewriteTableRow(index, clearTokensInContent)
}

func (d *Document) rewriteTableRow(index int, rewrite func(string) string) error {
	content, rows, err := d.mainTableRows()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(rows) {
		return fmt.Errorf("table row %d out of range (table has %d rows)", index, len(rows))
	}
	row := rows[index]
	d.setPart(documentPart, content[:row.start]+rewrite(content[row.start:row.end])+content[row.end:])
	return nil
}

func (d *Document) mainTableRows() (string, []element, error) {
	content, ok := d.part(documentPart)
	if !ok {
		return "", nil, fmt.Errorf("package has no %s", documentPart)
	}
	table, found := findElement(content, "w:tbl", 0)
	if !found {
		return "", nil, fmt.Errorf("document has no table")
	}

	var rows []element
	offset := table.start + 1
	for {
		row, ok := findElement(content, "w:tr", offset)
		if !ok || row.start >= table.end {
			break
		}
		rows = append(rows, row)
		// Skipping to the row's end keeps nested-table rows out of the list.
		offset = row.end
	}
	return content, rows, nil
}
