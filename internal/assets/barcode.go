package assets

import (
	"bytes"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"

	"dlgen/internal/services"
)

// Barcode renders a Code 128 barcode as PNG bytes. The bars carry the value
// alone; the letter body prints the code in text beside it, so no caption is
// drawn.
func Barcode(value string, width, height int) ([]byte, error) {
	if value == "" {
		return nil, services.Wrap(services.ErrValidation, "assets", "barcode", "empty value", nil)
	}
	encoded, err := code128.Encode(value)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "barcode", "encode "+value, err)
	}
	scaled, err := barcode.Scale(encoded, width, height)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "barcode", "scale", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "barcode", "render png", err)
	}
	return buf.Bytes(), nil
}
