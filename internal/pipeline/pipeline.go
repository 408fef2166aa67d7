package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dlgen/internal/audit"
	"dlgen/internal/convert"
	"dlgen/internal/ingest"
	"dlgen/internal/logging"
	"dlgen/internal/records"
	"dlgen/internal/services"
	"dlgen/internal/session"
	"dlgen/internal/templates"
)

// State names the stages of a generation run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateGenerating State = "generating_documents"
	StateConverting State = "converting"
	StateMerging    State = "merging"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Event is one progress update streamed to the client as NDJSON.
type Event struct {
	Progress      int    `json:"progress"`
	Message       string `json:"message"`
	Error         string `json:"error,omitempty"`
	DownloadReady bool   `json:"download_ready,omitempty"`
	PrintReady    bool   `json:"print_ready,omitempty"`
}

// Result summarizes a finished run.
type Result struct {
	State        State
	RunID        int64
	TotalRecords int
	ValidRecords int
	Generated    int
	Converted    int
	Failed       int
	Areas        []string
	ArchivePath  string
	OutputFiles  []string
}

// DocumentConverter is the slice of the converter the pipeline needs.
type DocumentConverter interface {
	Convert(ctx context.Context, inputs []string, outDir string, events func(convert.Event)) (convert.Result, error)
}

// Pipeline executes generation runs against a user session.
type Pipeline struct {
	lookup       templates.Lookup
	fetcher      templates.Fetcher
	converter    DocumentConverter
	auditStore   *audit.Store
	manifestSize int
	logger       *slog.Logger
}

// New constructs a pipeline.
func New(lookup templates.Lookup, fetcher templates.Fetcher, converter DocumentConverter, auditStore *audit.Store, manifestPageSize int, logger *slog.Logger) (*Pipeline, error) {
	if lookup == nil || fetcher == nil || converter == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "",
			"lookup, fetcher and converter required", nil)
	}
	if manifestPageSize <= 0 {
		manifestPageSize = 4
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		lookup:       lookup,
		fetcher:      fetcher,
		converter:    converter,
		auditStore:   auditStore,
		manifestSize: manifestPageSize,
		logger:       logging.WithComponent(logger, "pipeline"),
	}, nil
}

// progressEmitter serializes events and keeps the reported percentage
// monotonic even when concurrent batch callbacks race.
type progressEmitter struct {
	mu      sync.Mutex
	sink    func(Event)
	current int
}

func (p *progressEmitter) emit(progress int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if progress < p.current {
		progress = p.current
	}
	p.current = progress
	if p.sink != nil {
		p.sink(Event{Progress: progress, Message: message})
	}
}

func (p *progressEmitter) emitFinal(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.Progress < p.current {
		ev.Progress = p.current
	}
	p.current = ev.Progress
	if p.sink != nil {
		p.sink(ev)
	}
}

// Run executes a full generation run for the session. The session run lock is
// claimed for the duration and always released, whatever happens. Events are
// emitted for every stage transition; the final event carries either the
// error or the ready flags.
func (p *Pipeline) Run(ctx context.Context, sess *session.Session, events func(Event)) (Result, error) {
	if !sess.TryLock() {
		return Result{State: StateFailed}, services.Wrap(services.ErrConflict, "pipeline", "",
			"a generation run is already in progress for this session", nil)
	}
	defer sess.Unlock()

	emitter := &progressEmitter{sink: events}
	started := time.Now()

	result, runErr := p.execute(ctx, sess, emitter)
	result.State = StateCompleted
	if runErr != nil {
		result.State = StateFailed
	}

	result.RunID = p.recordAudit(ctx, sess, result, runErr, started)

	if runErr != nil {
		emitter.emitFinal(Event{Progress: 100, Message: "generation failed", Error: runErr.Error()})
		p.logger.Error("run failed",
			logging.String("identity", sess.Identity()),
			logging.Error(runErr))
		return result, runErr
	}

	emitter.emitFinal(Event{
		Progress:      100,
		Message:       "generation complete",
		DownloadReady: sess.Format() == session.FormatZip,
		PrintReady:    sess.Format() == session.FormatPrint,
	})
	p.logger.Info("run complete",
		logging.String("identity", sess.Identity()),
		logging.Int("generated", result.Generated),
		logging.Int("converted", result.Converted),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (p *Pipeline) execute(ctx context.Context, sess *session.Session, emitter *progressEmitter) (Result, error) {
	var result Result

	// Validating.
	emitter.emit(2, "validating upload")
	table := sess.Table()
	if table == nil {
		return result, services.Wrap(services.ErrValidation, "pipeline", "",
			"no workbook uploaded", nil)
	}
	if sess.Mode() == "" {
		return result, services.Wrap(services.ErrValidation, "pipeline", "",
			"no letter type selected", nil)
	}
	if err := ingest.ValidateForGeneration(table); err != nil {
		return result, err
	}
	if err := sess.ResetRunDirs(); err != nil {
		return result, err
	}

	valid := table.ValidRows()
	groups := records.GroupByArea(valid)
	areas := records.Areas(groups)
	result.TotalRecords = len(table.Rows)
	result.ValidRecords = len(valid)
	result.Areas = areas
	emitter.emit(5, fmt.Sprintf("validated %d records across %d areas", len(valid), len(areas)))

	// Template preparation.
	protos, ra, err := p.prepareTemplates(ctx, sess)
	if err != nil {
		return result, err
	}
	emitter.emit(10, "templates ready")

	// Generating documents.
	generated, err := p.generateDocuments(ctx, sess, groups, areas, protos, ra, emitter)
	if err != nil {
		return result, err
	}
	result.Generated = len(generated.letters)

	// Converting.
	converted, err := p.convertDocuments(ctx, sess, generated, emitter)
	if err != nil {
		return result, err
	}
	result.Converted = len(converted.succeeded)
	result.Failed = len(converted.failed)
	if result.Converted == 0 {
		return result, services.Wrap(services.ErrExternalTool, "pipeline", "",
			"no document survived conversion", nil)
	}

	// Merging.
	outputs, err := p.mergeByArea(ctx, sess, areas, converted, emitter)
	if err != nil {
		return result, err
	}
	result.OutputFiles = outputs

	// Finalizing.
	emitter.emit(92, "finalizing output")
	if sess.Format() == session.FormatZip {
		archive, err := p.buildArchive(sess, outputs)
		if err != nil {
			return result, err
		}
		result.ArchivePath = archive
	}

	// The merged bundles are the product; the per-record documents and PDFs
	// only waste disk once the merge succeeds.
	if err := sess.ClearScratchDirs(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Pipeline) recordAudit(ctx context.Context, sess *session.Session, result Result, runErr error, started time.Time) int64 {
	if p.auditStore == nil {
		return 0
	}

	run := audit.Run{
		Identity:     sess.Identity(),
		LetterType:   sess.Mode(),
		OutputFormat: string(sess.Format()),
		Status:       string(StateCompleted),
		TotalRecords: result.TotalRecords,
		ValidRecords: result.ValidRecords,
		Generated:    result.Generated,
		Converted:    result.Converted,
		Failed:       result.Failed,
		Areas:        strings.Join(result.Areas, ","),
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if runErr != nil {
		run.Status = string(StateFailed)
		run.Error = runErr.Error()
	}

	var accounts []audit.Account
	if table := sess.Table(); table != nil && runErr == nil {
		for _, record := range table.ValidRows() {
			accounts = append(accounts, audit.Account{
				Area:         record.Area(),
				DLCode:       record.DLCode(),
				AccountNo:    record[records.ColumnAccountNo],
				CustomerName: record[records.ColumnName],
				Amount:       record[records.ColumnAmount],
			})
		}
	}

	// Audit writes must not fail the run; the letters are already on disk.
	runID, err := p.auditStore.RecordRun(ctx, run, accounts)
	if err != nil {
		p.logger.Warn("audit write failed", logging.Error(err))
		return 0
	}
	return runID
}
