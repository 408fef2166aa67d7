package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"dlgen/internal/logging"
	"dlgen/internal/services"
)

// Executor abstracts running the converter binary for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) error
}

// Event describes batch progress for the run's progress stream.
type Event struct {
	Type         EventType
	BatchID      int
	TotalBatches int
	BatchSize    int
	Attempt      int
	Succeeded    int
	Failed       int
	TotalFiles   int
}

// EventType enumerates batch lifecycle notifications.
type EventType string

const (
	EventBatchStarted  EventType = "batch_started"
	EventBatchRetrying EventType = "batch_retrying"
	EventBatchFinished EventType = "batch_finished"
)

// Result summarizes a conversion run. Succeeded holds produced PDF paths in
// input order; Failed holds source documents that produced no output after
// every retry.
type Result struct {
	Succeeded []string
	Failed    []string
}

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithClock overrides the cooldown sleeper for tests.
func WithClock(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Converter) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Converter turns DOCX files into PDFs by driving a headless office binary in
// bounded batches. Each batch owns a private output directory and its own
// process; a stuck batch is killed and retried without touching any other
// batch's processes.
type Converter struct {
	binary     string
	batchSize  int
	timeout    time.Duration
	maxRetries int
	cooldown   time.Duration
	workers    int

	exec   Executor
	sleep  func(context.Context, time.Duration) error
	logger *slog.Logger
}

// New constructs a converter.
func New(binary string, batchSize, timeoutSeconds, maxRetries, cooldownSeconds, workers int, logger *slog.Logger, opts ...Option) (*Converter, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "converter", "", "binary required", nil)
	}
	if batchSize <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "converter", "", "batch size must be positive", nil)
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	conv := &Converter{
		binary:     binary,
		batchSize:  batchSize,
		timeout:    time.Duration(timeoutSeconds) * time.Second,
		maxRetries: maxRetries,
		cooldown:   time.Duration(cooldownSeconds) * time.Second,
		workers:    workers,
		exec:       commandExecutor{},
		sleep:      sleepContext,
		logger:     logging.WithComponent(logger, "converter"),
	}
	for _, opt := range opts {
		opt(conv)
	}
	return conv, nil
}

// Convert renders every input document to PDF in outDir. Events, when
// non-nil, receives batch lifecycle notifications; it must be safe for
// concurrent calls when workers exceeds one. Conversion continues past
// failed batches; the error is non-nil only when the run cannot proceed at
// all.
func (c *Converter) Convert(ctx context.Context, inputs []string, outDir string, events func(Event)) (Result, error) {
	if len(inputs) == 0 {
		return Result{}, nil
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	batches := splitBatches(inputs, c.batchSize)
	results := make([]Result, len(batches))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)
	for i, batch := range batches {
		group.Go(func() error {
			res, err := c.convertBatch(groupCtx, i, len(batches), batch, outDir, events)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	var merged Result
	for _, res := range results {
		merged.Succeeded = append(merged.Succeeded, res.Succeeded...)
		merged.Failed = append(merged.Failed, res.Failed...)
	}
	sort.Strings(merged.Failed)
	return merged, nil
}

func (c *Converter) convertBatch(ctx context.Context, batchID, totalBatches int, batch []string, outDir string, events func(Event)) (Result, error) {
	notify := func(eventType EventType, attempt, succeeded, failed int) {
		if events == nil {
			return
		}
		events(Event{
			Type:         eventType,
			BatchID:      batchID,
			TotalBatches: totalBatches,
			BatchSize:    len(batch),
			Attempt:      attempt,
			Succeeded:    succeeded,
			Failed:       failed,
			TotalFiles:   len(batch),
		})
	}

	notify(EventBatchStarted, 1, 0, 0)

	pending := append([]string(nil), batch...)
	done := make(map[string]string, len(batch))

	attempts := c.maxRetries + 1
	lastAttempt := 1
	for attempt := 1; attempt <= attempts && len(pending) > 0; attempt++ {
		lastAttempt = attempt
		if attempt > 1 {
			notify(EventBatchRetrying, attempt, len(done), 0)
			if err := c.sleep(ctx, c.cooldown); err != nil {
				return Result{}, err
			}
		}

		converted, err := c.runAttempt(ctx, batchID, pending, outDir)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			c.logger.Warn("conversion attempt failed",
				logging.Int("batch", batchID),
				logging.Int("attempt", attempt),
				logging.Error(err))
		}

		var remaining []string
		for _, input := range pending {
			if pdf, ok := converted[input]; ok {
				done[input] = pdf
			} else {
				remaining = append(remaining, input)
			}
		}
		pending = remaining
	}

	result := Result{Failed: pending}
	for _, input := range batch {
		if pdf, ok := done[input]; ok {
			result.Succeeded = append(result.Succeeded, pdf)
		}
	}
	notify(EventBatchFinished, lastAttempt, len(result.Succeeded), len(result.Failed))
	if len(result.Failed) > 0 {
		c.logger.Warn("batch finished with failures",
			logging.Int("batch", batchID),
			logging.Int("failed", len(result.Failed)))
	}
	return result, nil
}

// runAttempt drives one converter process over the pending inputs, writing
// into a private scratch directory. Success is judged solely by the presence
// of the output PDF: the office binary exits zero even when individual files
// fail.
func (c *Converter) runAttempt(ctx context.Context, batchID int, inputs []string, outDir string) (map[string]string, error) {
	scratch, err := os.MkdirTemp(outDir, fmt.Sprintf("batch%d-*", batchID))
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"--headless", "--convert-to", "pdf", "--outdir", scratch}
	args = append(args, inputs...)
	runErr := c.exec.Run(attemptCtx, c.binary, args)

	converted := make(map[string]string)
	for _, input := range inputs {
		pdfName := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".pdf"
		produced := filepath.Join(scratch, pdfName)
		if _, err := os.Stat(produced); err != nil {
			continue
		}
		final := filepath.Join(outDir, pdfName)
		if err := os.Rename(produced, final); err != nil {
			return nil, fmt.Errorf("move converted pdf: %w", err)
		}
		converted[input] = final
	}

	if runErr != nil && len(converted) < len(inputs) {
		marker := services.ErrExternalTool
		message := "converter process failed"
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			marker = services.ErrTimeout
			message = "converter timed out"
		}
		return converted, services.Wrap(marker, "converter",
			fmt.Sprintf("batch %d", batchID), message, runErr)
	}
	return converted, nil
}

func splitBatches(inputs []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		batches = append(batches, inputs[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// commandExecutor runs the converter in its own process group so a timeout
// kills the whole tree without touching other batches' processes.
type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 5 * time.Second
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", binary, err)
	}
	return nil
}
