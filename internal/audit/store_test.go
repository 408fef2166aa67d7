package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dlgen/internal/services"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(identity string, started time.Time) Run {
	return Run{
		Identity:     identity,
		LetterType:   "DL1",
		OutputFormat: "zip",
		Status:       "completed",
		TotalRecords: 10,
		ValidRecords: 9,
		Generated:    9,
		Converted:    9,
		Areas:        "CEBU,NCR",
		StartedAt:    started,
		FinishedAt:   started.Add(2 * time.Minute),
	}
}

func TestRecordRunRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	runID, err := store.RecordRun(ctx, sampleRun("alice", started), []Account{
		{Area: "NCR", DLCode: "DL1", AccountNo: "001", CustomerName: "JUAN", Amount: "1,234.56"},
		{Area: "CEBU", DLCode: "DL1", AccountNo: "002", CustomerName: "MARIA", Amount: "99.00"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	run, err := store.Run(ctx, runID)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Identity != "alice" || run.Converted != 9 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("started_at drifted: %v", run.StartedAt)
	}

	accounts, err := store.RunAccounts(ctx, runID)
	if err != nil {
		t.Fatalf("load accounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].CustomerName != "JUAN" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}
}

func TestListRunsFiltersAndPaginates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := store.RecordRun(ctx, sampleRun("alice", base.Add(time.Duration(i)*time.Hour)), nil); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := store.RecordRun(ctx, sampleRun("bob", base), nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	runs, err := store.ListRuns(ctx, "alice", 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected page of 2, got %d", len(runs))
	}
	if runs[0].StartedAt.Before(runs[1].StartedAt) {
		t.Fatal("runs not newest first")
	}
	for _, run := range runs {
		if run.Identity != "alice" {
			t.Fatalf("identity filter leaked: %+v", run)
		}
	}

	next, err := store.ListRuns(ctx, "alice", 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(next) != 1 {
		t.Fatalf("expected 1 run on second page, got %d", len(next))
	}

	all, err := store.ListRuns(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(all))
	}
}

func TestRunNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Run(context.Background(), 9999)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
