package assets

import (
	qrcode "github.com/skip2/go-qrcode"

	"dlgen/internal/services"
)

// QRSize is the pixel edge used for embedded QR codes.
const QRSize = 256

// QRCode renders the value as a PNG QR code with low error correction, which
// keeps the module grid coarse enough for office scanners on 600dpi prints.
func QRCode(value string) ([]byte, error) {
	if value == "" {
		return nil, services.Wrap(services.ErrValidation, "assets", "qrcode", "empty value", nil)
	}
	data, err := qrcode.Encode(value, qrcode.Low, QRSize)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assets", "qrcode", "encode", err)
	}
	return data, nil
}
