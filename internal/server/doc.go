// Package server exposes the generation workflow over HTTP: workbook upload,
// letter type and output format selection, the NDJSON progress stream for
// generation runs, downloads, printing and the audit trail.
package server
