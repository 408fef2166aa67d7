// Package assets produces the generated artifacts embedded into letters:
// Code 128 barcodes, QR codes, and amounts spelled out in words.
package assets
