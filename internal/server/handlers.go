package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dlgen/internal/ingest"
	"dlgen/internal/logging"
	"dlgen/internal/pipeline"
	"dlgen/internal/session"
)

func (s *Server) handleUploadExcel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	if err := r.ParseMultipartForm(ingest.MaxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".xlsx" {
		s.writeError(w, http.StatusBadRequest, "only .xlsx workbooks are accepted")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, ingest.MaxUploadBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	table, err := ingest.ParseWorkbook(data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sess.SetTable(table)

	s.logger.Info("workbook uploaded",
		logging.String("identity", sess.Identity()),
		logging.String("filename", header.Filename),
		logging.Int("rows", len(table.Rows)))
	s.writeJSON(w, http.StatusOK, map[string]any{
		"rows":       len(table.Rows),
		"valid_rows": len(table.ValidRows()),
		"columns":    table.Columns,
	})
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var payload struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Mode) == "" {
		s.writeError(w, http.StatusBadRequest, "mode required")
		return
	}
	sess.SetMode(payload.Mode)
	s.writeJSON(w, http.StatusOK, map[string]string{"mode": sess.Mode()})
}

func (s *Server) handleSetOutputFormat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var payload struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	format, err := session.ParseOutputFormat(payload.Format)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	sess.SetOutputFormat(format)
	s.writeJSON(w, http.StatusOK, map[string]string{"format": string(format)})
}

// handlePlaceholders previews the tokens of the selected letter template.
func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	tokens, err := s.runner.Placeholders(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"placeholders": tokens})
}

// handleGenerate streams run progress as NDJSON: one JSON object per line,
// flushed as each stage reports.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	events := func(ev pipeline.Event) {
		if err := encoder.Encode(ev); err != nil {
			return
		}
		flusher.Flush()
	}

	// The run outlives client disconnects on purpose: letters half-generated
	// by a closed laptop lid are worse than letters that finish.
	if _, err := s.runner.Run(context.WithoutCancel(r.Context()), sess, events); err != nil {
		s.logger.Warn("generation run failed",
			logging.String("identity", sess.Identity()),
			logging.Error(err))
	}
}

func (s *Server) handleDownloadZip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	archive := filepath.Join(sess.Dir(), "download.zip")
	if _, err := os.Stat(archive); err != nil {
		s.writeError(w, http.StatusNotFound, "no archive available; run generation first")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="letters.zip"`)
	http.ServeFile(w, r, archive)
}

func (s *Server) handlePrinters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.printer == nil {
		s.writeError(w, http.StatusNotFound, "printing not configured")
		return
	}
	printers, err := s.printer.Printers(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"printers": printers})
}

func (s *Server) handlePrintFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.printer == nil {
		s.writeError(w, http.StatusNotFound, "printing not configured")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	area := strings.TrimPrefix(r.URL.Path, "/api/print_files/")
	if area == "" || strings.Contains(area, "/") {
		s.writeError(w, http.StatusBadRequest, "area required")
		return
	}

	files, err := areaOutputFiles(sess.OutputDir(), area)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(files) == 0 {
		s.writeError(w, http.StatusNotFound, "no merged output for area "+area)
		return
	}

	if err := s.printer.Print(r.Context(), r.URL.Query().Get("printer"), files); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"printed": files})
}

// areaOutputFiles lists the merged PDFs for one area slug.
func areaOutputFiles(outputDir, area string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, area+"_") && strings.HasSuffix(name, ".pdf") {
			files = append(files, filepath.Join(outputDir, name))
		}
	}
	return files, nil
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if sess.Running() {
		s.writeError(w, http.StatusConflict, "a generation run is in progress")
		return
	}

	if err := sess.ResetRunDirs(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sess.ClearTemplates()
	_ = os.Remove(filepath.Join(sess.Dir(), "download.zip"))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.audits == nil {
		s.writeError(w, http.StatusNotFound, "audit trail not configured")
		return
	}

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	runs, err := s.audits.ListRuns(r.Context(), strings.TrimSpace(query.Get("identity")), limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
