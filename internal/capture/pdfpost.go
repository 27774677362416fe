package capture

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// validatePDF confirms the just-written PDF artifact is structurally sound
// by reading its document context back, the same way
// internal/services/pdf.Extractor reads a PDF before extracting its pages.
// A malformed PDF surfaces here as a read error rather than silently
// shipping a broken artifact.
func validatePDF(path string) error {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return fmt.Errorf("read pdf context: %w", err)
	}
	if pdfCtx.PageCount == 0 {
		return fmt.Errorf("pdf has zero pages")
	}
	return nil
}
