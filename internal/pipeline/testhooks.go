package pipeline

import (
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Test seams. Production code leaves these at their defaults.
var mergePDFs = defaultMergePDFs

func defaultMergePDFs(inputs []string, output string) error {
	return api.MergeCreateFile(inputs, output, false, nil)
}
