package records

import (
	"strings"
	"testing"
)

func row(name, area string) Record {
	return Record{ColumnName: name, ColumnArea: area, ColumnDLCode: "DL1"}
}

func TestRequireColumnsListsAllMissing(t *testing.T) {
	table := &Table{Columns: []string{"LEADS_CHNAME", "AMOUNT"}}
	err := table.RequireColumns(ColumnArea, ColumnDLCode)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "FINAL_AREA") || !strings.Contains(msg, "DL_CODE") {
		t.Fatalf("error should name every missing column: %v", err)
	}
}

func TestRequireColumnsAcceptsPresent(t *testing.T) {
	table := &Table{Columns: []string{"FINAL_AREA", "DL_CODE", "LEADS_CHNAME"}}
	if err := table.RequireColumns(ColumnArea, ColumnDLCode); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidRowsSkipsNameless(t *testing.T) {
	table := &Table{Rows: []Record{
		row("JUAN", "NCR"),
		row("  ", "NCR"),
		row("MARIA", "CEBU"),
		{ColumnArea: "DAVAO"},
	}}
	valid := table.ValidRows()
	if len(valid) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(valid))
	}
	if valid[0][ColumnName] != "JUAN" || valid[1][ColumnName] != "MARIA" {
		t.Fatalf("order not preserved: %v", valid)
	}
}

func TestGroupByAreaSortedKeys(t *testing.T) {
	groups := GroupByArea([]Record{
		row("A", "NCR"),
		row("B", "CEBU"),
		row("C", "NCR"),
		row("D", ""),
	})
	areas := Areas(groups)
	want := []string{"CEBU", "NCR", "UNASSIGNED"}
	if len(areas) != len(want) {
		t.Fatalf("areas = %v", areas)
	}
	for i := range want {
		if areas[i] != want[i] {
			t.Fatalf("areas = %v, want %v", areas, want)
		}
	}
	if len(groups["NCR"]) != 2 || groups["NCR"][0][ColumnName] != "A" {
		t.Fatalf("group order broken: %v", groups["NCR"])
	}
}

func TestPaginate(t *testing.T) {
	rows := []Record{row("1", ""), row("2", ""), row("3", ""), row("4", ""), row("5", "")}
	pages := Paginate(rows, 4)
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if len(pages[0]) != 4 || len(pages[1]) != 1 {
		t.Fatalf("page sizes wrong: %d, %d", len(pages[0]), len(pages[1]))
	}
	if pages := Paginate(nil, 4); pages != nil {
		t.Fatalf("empty input should yield no pages, got %v", pages)
	}
	if pages := Paginate(rows, 0); pages != nil {
		t.Fatalf("non-positive page size should yield no pages, got %v", pages)
	}
}
