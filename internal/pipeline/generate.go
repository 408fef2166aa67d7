package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dlgen/internal/docx"
	"dlgen/internal/records"
	"dlgen/internal/services"
	"dlgen/internal/session"
)

// prototypes holds the assembled template documents for one run. They are
// parsed once and cloned per record; the originals are never mutated.
type prototypes struct {
	letter      *docx.Document
	transmittal *docx.Document
}

// Sequence widths in generated document names. Merging keys on these to pair
// each PDF back to its area.
const (
	letterSeqDigits   = 4
	manifestSeqDigits = 3
)

func shellFileName(campaign string) string {
	return strings.ToLower(campaign) + "_header_footer.docx"
}

func transmittalFileName(campaign string) string {
	return strings.ToLower(campaign) + "_transmittal.docx"
}

func (p *Pipeline) prepareTemplates(ctx context.Context, sess *session.Session) (prototypes, renderAssets, error) {
	var protos prototypes
	var ra renderAssets

	entry, err := p.lookup.Resolve(ctx, sess.Mode())
	if err != nil {
		return protos, ra, err
	}

	letterBytes, err := p.cachedFetch(ctx, sess, "letter:"+entry.File, func(ctx context.Context) ([]byte, error) {
		return p.fetcher.LetterTemplate(ctx, entry.File)
	})
	if err != nil {
		return protos, ra, err
	}
	shellBytes, err := p.cachedFetch(ctx, sess, "shell:"+entry.Campaign, func(ctx context.Context) ([]byte, error) {
		return p.fetcher.HeaderFooter(ctx, shellFileName(entry.Campaign))
	})
	if err != nil {
		return protos, ra, err
	}
	transmittalBytes, err := p.cachedFetch(ctx, sess, "transmittal:"+entry.Campaign, func(ctx context.Context) ([]byte, error) {
		return p.fetcher.Transmittal(ctx, transmittalFileName(entry.Campaign))
	})
	if err != nil {
		return protos, ra, err
	}

	shell, err := docx.OpenBytes(shellBytes)
	if err != nil {
		return protos, ra, services.Wrap(services.ErrValidation, "pipeline", "open shell template", "", err)
	}
	letter, err := docx.OpenBytes(letterBytes)
	if err != nil {
		return protos, ra, services.Wrap(services.ErrValidation, "pipeline", "open letter template", "", err)
	}
	protos.letter, err = docx.Combine(shell, letter)
	if err != nil {
		return protos, ra, services.Wrap(services.ErrValidation, "pipeline", "assemble letter template", "", err)
	}
	protos.transmittal, err = docx.OpenBytes(transmittalBytes)
	if err != nil {
		return protos, ra, services.Wrap(services.ErrValidation, "pipeline", "open transmittal template", "", err)
	}

	ra.runDate = time.Now()
	signature, signedOn, err := p.fetcher.SignatureImage(ctx, ra.runDate)
	if err != nil {
		return protos, ra, err
	}
	ra.signature = signature
	ra.signatureDate = signedOn
	return protos, ra, nil
}

// Placeholders returns the distinct tokens of the selected letter template so
// callers can preview which workbook columns a run will consume.
func (p *Pipeline) Placeholders(ctx context.Context, sess *session.Session) ([]string, error) {
	if sess.Mode() == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "placeholders",
			"select a letter type first", nil)
	}
	entry, err := p.lookup.Resolve(ctx, sess.Mode())
	if err != nil {
		return nil, err
	}
	data, err := p.cachedFetch(ctx, sess, "letter:"+entry.File, func(ctx context.Context) ([]byte, error) {
		return p.fetcher.LetterTemplate(ctx, entry.File)
	})
	if err != nil {
		return nil, err
	}
	doc, err := docx.OpenBytes(data)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "open letter template", "", err)
	}
	return doc.Tokens(), nil
}

// cachedFetch serves template bytes from the session cache, fetching and
// caching on miss.
func (p *Pipeline) cachedFetch(ctx context.Context, sess *session.Session, key string, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if data, ok := sess.Template(key); ok {
		return data, nil
	}
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	sess.CacheTemplate(key, data)
	return data, nil
}

// generatedFiles partitions the produced documents by kind.
type generatedFiles struct {
	letters      []string
	transmittals []string
}

func (g generatedFiles) all() []string {
	return append(append([]string(nil), g.letters...), g.transmittals...)
}

func (p *Pipeline) generateDocuments(ctx context.Context, sess *session.Session, groups map[string][]records.Record, areas []string, protos prototypes, ra renderAssets, emitter *progressEmitter) (generatedFiles, error) {
	var generated generatedFiles

	total := 0
	for _, area := range areas {
		total += len(groups[area])
	}
	produced := 0

	for _, area := range areas {
		group := groups[area]
		for seq, record := range group {
			if err := ctx.Err(); err != nil {
				return generated, err
			}
			path, err := p.renderLetter(sess, protos.letter, record, area, seq+1, ra)
			if err != nil {
				return generated, err
			}
			generated.letters = append(generated.letters, path)
			produced++
			if produced%25 == 0 || produced == total {
				emitter.emit(10+(30*produced)/total,
					fmt.Sprintf("generated %d of %d letters", produced, total))
			}
		}

		manifests, err := p.renderTransmittals(ctx, sess, protos.transmittal, group, area, ra)
		if err != nil {
			return generated, err
		}
		generated.transmittals = append(generated.transmittals, manifests...)
	}

	emitter.emit(42, fmt.Sprintf("generated %d documents", len(generated.letters)+len(generated.transmittals)))
	return generated, nil
}

func (p *Pipeline) renderLetter(sess *session.Session, proto *docx.Document, record records.Record, area string, seq int, ra renderAssets) (string, error) {
	doc := proto.Clone()
	doc.ReplaceText(recordValues(record, ra))

	if err := doc.ReplaceImages(p.recordImages(record)); err != nil {
		return "", services.Wrap(services.ErrValidation, "pipeline", "embed images", "", err)
	}
	if err := doc.ReplaceTextBoxImage(tokenSignImage, signatureImage(ra)); err != nil {
		return "", services.Wrap(services.ErrValidation, "pipeline", "embed signature", "", err)
	}
	doc.ClearTokens()

	name := fmt.Sprintf("dl_%s_%0*d_%s.docx", sanitizeArea(area), letterSeqDigits, seq, shortID())
	path := filepath.Join(sess.DocumentsDir(), name)
	if err := doc.Save(path); err != nil {
		return "", fmt.Errorf("save letter: %w", err)
	}
	return path, nil
}

func (p *Pipeline) renderTransmittals(ctx context.Context, sess *session.Session, proto *docx.Document, group []records.Record, area string, ra renderAssets) ([]string, error) {
	pages := records.Paginate(group, p.manifestSize)
	var paths []string

	for pageIdx, page := range pages {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		doc := proto.Clone()

		rowCount, err := doc.MainTableRowCount()
		if err != nil {
			return paths, services.Wrap(services.ErrValidation, "pipeline", "transmittal template", "", err)
		}
		// Row 0 is the column header; each manifest slot is one row below it.
		if rowCount < p.manifestSize+1 {
			return paths, services.Wrap(services.ErrValidation, "pipeline", "transmittal template",
				fmt.Sprintf("main table has %d rows, need %d slots", rowCount, p.manifestSize), nil)
		}

		for slot, record := range page {
			if err := doc.FillTableRow(slot+1, recordValues(record, ra)); err != nil {
				return paths, err
			}
		}
		for slot := len(page); slot < p.manifestSize; slot++ {
			if err := doc.ClearTableRow(slot + 1); err != nil {
				return paths, err
			}
		}

		doc.ReplaceText(map[string]string{
			records.ColumnArea: area,
			"PAGE":             fmt.Sprintf("%d", pageIdx+1),
			"PAGE_TOTAL":       fmt.Sprintf("%d", len(pages)),
			tokenDLDate:        ra.runDate.Format(letterDateLayout),
		})
		doc.ClearTokens()

		name := fmt.Sprintf("transmittal_%s_%0*d_%s.docx", sanitizeArea(area), manifestSeqDigits, pageIdx+1, shortID())
		path := filepath.Join(sess.DocumentsDir(), name)
		if err := doc.Save(path); err != nil {
			return paths, fmt.Errorf("save transmittal: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func sanitizeArea(area string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, strings.TrimSpace(area))
	if mapped == "" {
		mapped = "unassigned"
	}
	return mapped
}

func shortID() string {
	return uuid.NewString()[:8]
}
