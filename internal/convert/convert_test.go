package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dlgen/internal/services"
)

// fakeExecutor mimics the office binary: it decides per call which inputs get
// an output PDF written into the scratch directory.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   [][]string
	handler func(call int, scratch string, inputs []string) error
}

func (f *fakeExecutor) Run(_ context.Context, _ string, args []string) error {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	scratch, inputs := parseConverterArgs(args)
	return f.handler(call, scratch, inputs)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func parseConverterArgs(args []string) (string, []string) {
	for i, arg := range args {
		if arg == "--outdir" {
			return args[i+1], args[i+2:]
		}
	}
	return "", nil
}

func writePDF(t *testing.T, scratch, input string) {
	t.Helper()
	name := strings.TrimSuffix(filepath.Base(input), ".docx") + ".pdf"
	if err := os.WriteFile(filepath.Join(scratch, name), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write fake pdf: %v", err)
	}
}

func makeInputs(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	inputs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "dl_ncr_"+strings.Repeat("0", 3)+string(rune('a'+i))+".docx")
		if err := os.WriteFile(path, []byte("docx"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
		inputs = append(inputs, path)
	}
	return inputs
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestConverter(t *testing.T, exec Executor, batchSize, maxRetries, workers int) *Converter {
	t.Helper()
	conv, err := New("soffice", batchSize, 5, maxRetries, 1, workers, nil,
		WithExecutor(exec), WithClock(noSleep))
	if err != nil {
		t.Fatalf("new converter: %v", err)
	}
	return conv
}

func TestConvertAllSucceedFirstAttempt(t *testing.T) {
	exec := &fakeExecutor{handler: func(_ int, scratch string, inputs []string) error {
		for _, input := range inputs {
			writePDF(t, scratch, input)
		}
		return nil
	}}
	conv := newTestConverter(t, exec, 10, 3, 1)

	inputs := makeInputs(t, 3)
	outDir := t.TempDir()
	result, err := conv.Convert(context.Background(), inputs, outDir, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Succeeded) != 3 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if exec.callCount() != 1 {
		t.Fatalf("expected 1 attempt, got %d", exec.callCount())
	}
	for _, pdf := range result.Succeeded {
		if _, err := os.Stat(pdf); err != nil {
			t.Fatalf("pdf missing: %v", err)
		}
		if filepath.Dir(pdf) != outDir {
			t.Fatalf("pdf not in output dir: %s", pdf)
		}
	}
}

func TestConvertRetriesUntilSuccess(t *testing.T) {
	exec := &fakeExecutor{handler: func(call int, scratch string, inputs []string) error {
		if call < 2 {
			return nil // exit zero, no output: silent converter failure
		}
		for _, input := range inputs {
			writePDF(t, scratch, input)
		}
		return nil
	}}
	conv := newTestConverter(t, exec, 10, 3, 1)

	result, err := conv.Convert(context.Background(), makeInputs(t, 2), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Succeeded) != 2 || len(result.Failed) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if exec.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", exec.callCount())
	}
}

func TestConvertGivesUpAfterRetryCeiling(t *testing.T) {
	exec := &fakeExecutor{handler: func(int, string, []string) error {
		return nil
	}}
	conv := newTestConverter(t, exec, 10, 2, 1)

	inputs := makeInputs(t, 2)
	result, err := conv.Convert(context.Background(), inputs, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Failed) != 2 {
		t.Fatalf("expected all inputs failed, got %+v", result)
	}
	if exec.callCount() != 3 { // maxRetries 2 means 3 attempts
		t.Fatalf("expected 3 attempts, got %d", exec.callCount())
	}
}

func TestConvertRetriesOnlyMissingOutputs(t *testing.T) {
	exec := &fakeExecutor{handler: func(call int, scratch string, inputs []string) error {
		if call == 0 {
			writePDF(t, scratch, inputs[0])
			return nil
		}
		for _, input := range inputs {
			writePDF(t, scratch, input)
		}
		return nil
	}}
	conv := newTestConverter(t, exec, 10, 3, 1)

	result, err := conv.Convert(context.Background(), makeInputs(t, 3), t.TempDir(), nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Succeeded) != 3 {
		t.Fatalf("result = %+v", result)
	}

	exec.mu.Lock()
	_, secondAttempt := parseConverterArgs(exec.calls[1])
	exec.mu.Unlock()
	if len(secondAttempt) != 2 {
		t.Fatalf("second attempt should carry only the 2 missing files, got %v", secondAttempt)
	}
}

func TestConvertSplitsIntoBatches(t *testing.T) {
	exec := &fakeExecutor{handler: func(_ int, scratch string, inputs []string) error {
		for _, input := range inputs {
			writePDF(t, scratch, input)
		}
		return nil
	}}
	conv := newTestConverter(t, exec, 2, 0, 2)

	var mu sync.Mutex
	var finished []Event
	events := func(ev Event) {
		if ev.Type != EventBatchFinished {
			return
		}
		mu.Lock()
		finished = append(finished, ev)
		mu.Unlock()
	}

	result, err := conv.Convert(context.Background(), makeInputs(t, 5), t.TempDir(), events)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Succeeded) != 5 {
		t.Fatalf("result = %+v", result)
	}
	if exec.callCount() != 3 {
		t.Fatalf("expected 3 batch processes, got %d", exec.callCount())
	}
	if len(finished) != 3 {
		t.Fatalf("expected 3 finished events, got %d", len(finished))
	}
	for _, ev := range finished {
		if ev.TotalBatches != 3 {
			t.Fatalf("event TotalBatches = %d", ev.TotalBatches)
		}
		if ev.Attempt != 1 {
			t.Fatalf("first-attempt success reported attempt %d", ev.Attempt)
		}
	}
}

func TestBatchFinishedReportsActualAttempt(t *testing.T) {
	exec := &fakeExecutor{handler: func(call int, scratch string, inputs []string) error {
		if call < 2 {
			return nil
		}
		for _, input := range inputs {
			writePDF(t, scratch, input)
		}
		return nil
	}}
	conv := newTestConverter(t, exec, 10, 4, 1)

	var finished []Event
	events := func(ev Event) {
		if ev.Type == EventBatchFinished {
			finished = append(finished, ev)
		}
	}
	result, err := conv.Convert(context.Background(), makeInputs(t, 2), t.TempDir(), events)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(result.Succeeded) != 2 {
		t.Fatalf("result = %+v", result)
	}
	// Success came on the third attempt; the event must not report the
	// retry ceiling.
	if len(finished) != 1 || finished[0].Attempt != 3 {
		t.Fatalf("finished events = %+v", finished)
	}
}

func TestConvertHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{handler: func(int, string, []string) error {
		cancel()
		return context.Canceled
	}}
	conv := newTestConverter(t, exec, 10, 5, 1)

	_, err := conv.Convert(ctx, makeInputs(t, 1), t.TempDir(), nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

// blockingExecutor hangs until the attempt context is torn down, like a
// wedged office process.
type blockingExecutor struct{}

func (blockingExecutor) Run(ctx context.Context, _ string, _ []string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunAttemptClassifiesTimeout(t *testing.T) {
	conv := newTestConverter(t, blockingExecutor{}, 10, 0, 1)
	conv.timeout = 10 * time.Millisecond

	_, err := conv.runAttempt(context.Background(), 0, makeInputs(t, 1), t.TempDir())
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestConvertCooldownBetweenRetries(t *testing.T) {
	var sleeps int
	clock := func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}
	exec := &fakeExecutor{handler: func(int, string, []string) error { return nil }}
	conv, err := New("soffice", 10, 5, 2, 1, 1, nil, WithExecutor(exec), WithClock(clock))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, err := conv.Convert(context.Background(), makeInputs(t, 1), t.TempDir(), nil); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if sleeps != 2 {
		t.Fatalf("expected 2 cooldowns, got %d", sleeps)
	}
}
