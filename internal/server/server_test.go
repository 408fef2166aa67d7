package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"dlgen/internal/audit"
	"dlgen/internal/pipeline"
	"dlgen/internal/services"
	"dlgen/internal/session"
)

type fakeRunner struct {
	events       []pipeline.Event
	result       pipeline.Result
	err          error
	ran          bool
	placeholders []string
}

func (f *fakeRunner) Run(_ context.Context, _ *session.Session, events func(pipeline.Event)) (pipeline.Result, error) {
	f.ran = true
	for _, ev := range f.events {
		if events != nil {
			events(ev)
		}
	}
	return f.result, f.err
}

func (f *fakeRunner) Placeholders(_ context.Context, sess *session.Session) ([]string, error) {
	if sess.Mode() == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "placeholders",
			"select a letter type first", nil)
	}
	return f.placeholders, nil
}

type fakePrinter struct {
	printers []string
	printed  []string
	target   string
}

func (f *fakePrinter) Printers(context.Context) ([]string, error) {
	return f.printers, nil
}

func (f *fakePrinter) Print(_ context.Context, printer string, files []string) error {
	f.target = printer
	f.printed = append(f.printed, files...)
	return nil
}

type fakeAudits struct {
	runs []audit.Run
}

func (f *fakeAudits) ListRuns(_ context.Context, identity string, _, _ int) ([]audit.Run, error) {
	if identity == "" {
		return f.runs, nil
	}
	var filtered []audit.Run
	for _, run := range f.runs {
		if run.Identity == identity {
			filtered = append(filtered, run)
		}
	}
	return filtered, nil
}

type testServer struct {
	srv     *Server
	handler http.Handler
	store   *session.Store
	runner  *fakeRunner
	printer *fakePrinter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := session.NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	runner := &fakeRunner{}
	printer := &fakePrinter{printers: []string{"office_laser"}}

	srv, err := New(Options{
		Bind:     "127.0.0.1:0",
		Sessions: store,
		Runner:   runner,
		Printer:  printer,
		Audits:   &fakeAudits{runs: []audit.Run{{ID: 1, Identity: "local", Status: "completed"}}},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{srv: srv, handler: srv.Routes(), store: store, runner: runner, printer: printer}
}

func (ts *testServer) session(t *testing.T) *session.Session {
	t.Helper()
	sess, err := ts.store.Get("local")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return sess
}

func buildWorkbookUpload(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	rows := [][]string{
		{"FINAL_AREA", "DL_CODE", "LEADS_CHNAME"},
		{"NCR", "DL-001", "JUAN"},
		{"NCR", "DL-002", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var workbook bytes.Buffer
	if err := book.Write(&workbook); err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(workbook.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}
	return &body, form.FormDataContentType()
}

func TestUploadExcel(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := buildWorkbookUpload(t, "accounts.xlsx")

	req := httptest.NewRequest(http.MethodPost, "/api/upload_excel", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Rows      int `json:"rows"`
		ValidRows int `json:"valid_rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Rows != 2 || payload.ValidRows != 1 {
		t.Fatalf("payload = %+v", payload)
	}
	if ts.session(t).Table() == nil {
		t.Fatal("table not stored in session")
	}
}

func TestUploadRejectsWrongExtension(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := buildWorkbookUpload(t, "accounts.csv")

	req := httptest.NewRequest(http.MethodPost, "/api/upload_excel", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSetMode(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/set_mode", strings.NewReader(`{"mode":"DL1"}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ts.session(t).Mode() != "DL1" {
		t.Fatalf("mode = %q", ts.session(t).Mode())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/set_mode", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty mode status = %d", rec.Code)
	}
}

func TestSetOutputFormat(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/set_output_format", strings.NewReader(`{"format":"print"}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ts.session(t).Format() != session.FormatPrint {
		t.Fatalf("format = %q", ts.session(t).Format())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/set_output_format", strings.NewReader(`{"format":"docx"}`))
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rec.Code)
	}
}

func TestPlaceholders(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.placeholders = []string{"AMOUNT", "DL_DATE", "LEADS_CHNAME"}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/placeholders", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status without mode = %d", rec.Code)
	}

	ts.session(t).SetMode("DL1")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/placeholders", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "LEADS_CHNAME") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGenerateStreamsNDJSON(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.events = []pipeline.Event{
		{Progress: 10, Message: "validating upload"},
		{Progress: 100, Message: "generation complete", DownloadReady: true},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/x-ndjson" {
		t.Fatalf("content type = %q", got)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d: %q", len(lines), rec.Body.String())
	}
	var last pipeline.Event
	if err := json.Unmarshal([]byte(lines[1]), &last); err != nil {
		t.Fatalf("decode last line: %v", err)
	}
	if last.Progress != 100 || !last.DownloadReady {
		t.Fatalf("last event = %+v", last)
	}
	if !ts.runner.ran {
		t.Fatal("runner never invoked")
	}
}

func TestDownloadZip(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/download_zip", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status without archive = %d", rec.Code)
	}

	sess := ts.session(t)
	if err := os.WriteFile(filepath.Join(sess.Dir(), "download.zip"), []byte("PK"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/download_zip", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status with archive = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "letters.zip") {
		t.Fatalf("content disposition = %q", got)
	}
}

func TestPrinters(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/printers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "office_laser") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestPrintFilesForArea(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.session(t)
	for _, name := range []string{"ncr_DL.pdf", "ncr_Transmittal.pdf", "cebu_DL.pdf"} {
		if err := os.WriteFile(filepath.Join(sess.OutputDir(), name), []byte("%PDF"), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/print_files/ncr?printer=office_laser", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.printer.printed) != 2 {
		t.Fatalf("printed = %v", ts.printer.printed)
	}
	if ts.printer.target != "office_laser" {
		t.Fatalf("target printer = %q", ts.printer.target)
	}

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/print_files/davao", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown area status = %d", rec.Code)
	}
}

func TestCleanup(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.session(t)
	leftover := filepath.Join(sess.OutputDir(), "ncr_DL.pdf")
	if err := os.WriteFile(leftover, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write leftover: %v", err)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, err := os.Stat(leftover); err == nil {
		t.Fatal("leftover output survived cleanup")
	}
}

func TestCleanupConflictsWithRunningSession(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.session(t)
	sess.TryLock()
	defer sess.Unlock()

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/cleanup", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit_trail?identity=local", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"completed"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upload_excel", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
