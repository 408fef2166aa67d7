package pipeline

import (
	"strings"
	"time"

	"dlgen/internal/assets"
	"dlgen/internal/docx"
	"dlgen/internal/logging"
	"dlgen/internal/records"
)

// Token names computed by the pipeline. Computed values win over workbook
// columns of the same name so a stray spreadsheet column can never override
// the barcode or the letter date.
const (
	tokenDLDate       = "DL_DATE"
	tokenAmountWords  = "AMOUNT_WORDS"
	tokenAmountAbbr   = "AMOUNT_ABBR"
	tokenSignDate     = "SIGNATURE_DATE"
	tokenBarcodeImage = "IMAGE_BARCODE"
	tokenQRImage      = "IMAGE_QRCODE"
	tokenSignImage    = "IMAGE_SIGNATURE"
)

const letterDateLayout = "January 02, 2006"

// barcode sizing tuned for the letter footer strip.
const (
	barcodeWidthPx  = 400
	barcodeHeightPx = 90
)

type renderAssets struct {
	signature     []byte
	signatureDate time.Time
	runDate       time.Time
}

// recordValues builds the text substitution map for one record: every
// workbook column under its upper-cased name, then the computed tokens
// layered on top. Tokens are upper-case by convention; a workbook with
// mixed-case headers must still fill them.
func recordValues(record records.Record, ra renderAssets) map[string]string {
	values := make(map[string]string, len(record)+4)
	for column, cell := range record {
		values[strings.ToUpper(column)] = cell
	}

	values[tokenDLDate] = ra.runDate.Format(letterDateLayout)
	values[tokenSignDate] = ra.signatureDate.Format(letterDateLayout)

	amountRaw := record[records.ColumnAmount]
	values[tokenAmountWords] = assets.AmountToWords(amountRaw)
	if amount, ok := assets.ParseAmount(amountRaw); ok {
		values[tokenAmountAbbr] = assets.FormatAmount(amount)
	} else {
		values[tokenAmountAbbr] = assets.ErrorConvertingAmount
	}
	return values
}

// recordImages builds the inline image map for one record. The barcode and QR
// code both carry the DL code, which is what the downstream mailroom scanners
// key on. A code the encoders reject yields no image for that token; the
// placeholder is blanked with the other leftovers instead of failing the run.
func (p *Pipeline) recordImages(record records.Record) map[string]docx.Image {
	code := record.DLCode()
	images := make(map[string]docx.Image, 2)

	if png, err := assets.Barcode(code, barcodeWidthPx, barcodeHeightPx); err != nil {
		p.logger.Warn("barcode skipped",
			logging.String("dl_code", code),
			logging.Error(err))
	} else {
		images[tokenBarcodeImage] = docx.Image{
			Data:      png,
			WidthEMU:  docx.Inches(2.5),
			HeightEMU: docx.Inches(0.6),
		}
	}

	if png, err := assets.QRCode(code); err != nil {
		p.logger.Warn("qr code skipped",
			logging.String("dl_code", code),
			logging.Error(err))
	} else {
		images[tokenQRImage] = docx.Image{
			Data:      png,
			WidthEMU:  docx.Inches(1.0),
			HeightEMU: docx.Inches(1.0),
		}
	}
	return images
}

func signatureImage(ra renderAssets) docx.Image {
	return docx.Image{
		Data:      ra.signature,
		WidthEMU:  docx.Inches(1.8),
		HeightEMU: docx.Inches(0.8),
	}
}
