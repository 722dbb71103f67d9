package ingest

import (
	"bytes"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// pdfPageCount reads the page count with relaxed validation. Callers treat a
// failure as diagnostic only; the model may still cope with the file.
func pdfPageCount(data []byte) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), cfg)
}
