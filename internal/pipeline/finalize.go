package pipeline

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"dlgen/internal/convert"
	"dlgen/internal/logging"
	"dlgen/internal/services"
	"dlgen/internal/session"
)

// convertedFiles holds the conversion outcome keyed for merging.
type convertedFiles struct {
	succeeded []string
	failed    []string
}

func (p *Pipeline) convertDocuments(ctx context.Context, sess *session.Session, generated generatedFiles, emitter *progressEmitter) (convertedFiles, error) {
	inputs := generated.all()
	emitter.emit(45, fmt.Sprintf("converting %d documents to PDF", len(inputs)))

	var mu sync.Mutex
	finishedBatches := 0
	events := func(ev convert.Event) {
		if ev.Type != convert.EventBatchFinished {
			return
		}
		mu.Lock()
		finishedBatches++
		finished := finishedBatches
		mu.Unlock()
		emitter.emit(45+(30*finished)/ev.TotalBatches,
			fmt.Sprintf("converted batch %d of %d", finished, ev.TotalBatches))
	}

	result, err := p.converter.Convert(ctx, inputs, sess.PDFDir(), events)
	if err != nil {
		return convertedFiles{}, err
	}
	if len(result.Failed) > 0 {
		p.logger.Warn("documents failed conversion",
			logging.Int("failed", len(result.Failed)))
	}
	emitter.emit(75, fmt.Sprintf("converted %d of %d documents", len(result.Succeeded), len(inputs)))
	return convertedFiles{succeeded: result.Succeeded, failed: result.Failed}, nil
}

// mergeByArea collates the converted PDFs into one letter bundle and one
// transmittal bundle per area.
func (p *Pipeline) mergeByArea(ctx context.Context, sess *session.Session, areas []string, converted convertedFiles, emitter *progressEmitter) ([]string, error) {
	emitter.emit(78, "merging PDFs by area")

	var outputs []string
	for i, area := range areas {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}
		slug := sanitizeArea(area)

		letters := matchPDFs(converted.succeeded, "dl_"+slug+"_", letterSeqDigits)
		manifests := matchPDFs(converted.succeeded, "transmittal_"+slug+"_", manifestSeqDigits)

		if len(letters) > 0 {
			out := filepath.Join(sess.OutputDir(), slug+"_DL.pdf")
			if err := mergePDFs(letters, out); err != nil {
				return outputs, services.Wrap(services.ErrExternalTool, "pipeline",
					"merge letters for "+area, "", err)
			}
			outputs = append(outputs, out)
		}
		if len(manifests) > 0 {
			out := filepath.Join(sess.OutputDir(), slug+"_Transmittal.pdf")
			if err := mergePDFs(manifests, out); err != nil {
				return outputs, services.Wrap(services.ErrExternalTool, "pipeline",
					"merge transmittals for "+area, "", err)
			}
			outputs = append(outputs, out)
		}
		emitter.emit(78+(12*(i+1))/len(areas),
			fmt.Sprintf("merged area %s", area))
	}

	if len(outputs) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "pipeline", "",
			"merging produced no output files", nil)
	}
	return outputs, nil
}

// matchPDFs selects PDFs named prefix plus the fixed-width numeric sequence.
// Requiring the digits keeps a slug from capturing another slug it happens to
// prefix, like ncr swallowing ncr_east.
func matchPDFs(paths []string, prefix string, seqDigits int) []string {
	var matched []string
	for _, path := range paths {
		rest, ok := strings.CutPrefix(filepath.Base(path), prefix)
		if !ok || len(rest) <= seqDigits || rest[seqDigits] != '_' {
			continue
		}
		if isDigits(rest[:seqDigits]) {
			matched = append(matched, path)
		}
	}
	return matched
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// buildArchive zips the merged outputs for download. The archive sits beside
// the output directory so it never includes itself.
func (p *Pipeline) buildArchive(sess *session.Session, outputs []string) (string, error) {
	archivePath := filepath.Join(sess.Dir(), "download.zip")
	file, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer file.Close()

	writer := zip.NewWriter(file)
	for _, output := range outputs {
		src, err := os.Open(output)
		if err != nil {
			return "", fmt.Errorf("open output %s: %w", output, err)
		}
		entry, err := writer.Create(filepath.Base(output))
		if err != nil {
			src.Close()
			return "", fmt.Errorf("create archive entry: %w", err)
		}
		if _, err := io.Copy(entry, src); err != nil {
			src.Close()
			return "", fmt.Errorf("write archive entry: %w", err)
		}
		src.Close()
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return archivePath, nil
}
