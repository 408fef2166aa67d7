package templates

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dlgen/internal/services"
)

// Entry is one row of the template catalog: which file renders which letter
// type for which campaign.
type Entry struct {
	Campaign   string
	LetterType string
	File       string
}

// Lookup resolves letter types against the template catalog.
type Lookup interface {
	Resolve(ctx context.Context, letterType string) (Entry, error)
	Entries(ctx context.Context) ([]Entry, error)
}

// SheetsLookup reads the catalog from a Google Sheets spreadsheet with
// CAMPAIGN, DL TYPE and FILE columns.
type SheetsLookup struct {
	spreadsheetID string
	sheetName     string
	fetch         func(ctx context.Context) ([][]any, error)
}

// NewSheetsLookup builds a lookup backed by the Sheets API using service
// account credentials.
func NewSheetsLookup(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsLookup, error) {
	if spreadsheetID == "" || sheetName == "" {
		return nil, services.Wrap(services.ErrConfiguration, "templates", "sheets",
			"spreadsheet id and sheet name required", nil)
	}
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "templates", "sheets",
			"create sheets client", err)
	}

	lookup := &SheetsLookup{spreadsheetID: spreadsheetID, sheetName: sheetName}
	lookup.fetch = func(ctx context.Context) ([][]any, error) {
		resp, err := service.Spreadsheets.Values.
			Get(spreadsheetID, sheetName+"!A:C").
			Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		return resp.Values, nil
	}
	return lookup, nil
}

// newStaticLookup builds a lookup over fixed rows; used by tests.
func newStaticLookup(rows [][]any) *SheetsLookup {
	return &SheetsLookup{
		spreadsheetID: "static",
		sheetName:     "static",
		fetch: func(context.Context) ([][]any, error) {
			return rows, nil
		},
	}
}

// Entries returns every catalog row, skipping the header and malformed rows.
func (l *SheetsLookup) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.fetch(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "templates", "sheets",
			"read catalog", err)
	}

	var entries []Entry
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		entry := Entry{
			Campaign:   cellText(row, 0),
			LetterType: cellText(row, 1),
			File:       cellText(row, 2),
		}
		if entry.LetterType == "" || entry.File == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Resolve finds the catalog entry for a letter type. Matching is
// case-insensitive on the DL TYPE column.
func (l *SheetsLookup) Resolve(ctx context.Context, letterType string) (Entry, error) {
	letterType = strings.TrimSpace(letterType)
	if letterType == "" {
		return Entry{}, services.Wrap(services.ErrValidation, "templates", "",
			"letter type required", nil)
	}
	entries, err := l.Entries(ctx)
	if err != nil {
		return Entry{}, err
	}
	for _, entry := range entries {
		if strings.EqualFold(entry.LetterType, letterType) {
			return entry, nil
		}
	}
	return Entry{}, services.Wrap(services.ErrNotFound, "templates", "",
		fmt.Sprintf("letter type %q not in catalog", letterType), nil)
}

func cellText(row []any, index int) string {
	if index >= len(row) {
		return ""
	}
	text, _ := row[index].(string)
	return strings.TrimSpace(text)
}
