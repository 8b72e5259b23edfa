package pdf

import (
	"context"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/loader"
)

// PDFTextLoader reads raw PDF bytes through another loader and converts
// them to text. Non-PDF content is passed through unchanged.
type PDFTextLoader struct {
	raw     loader.TextLoader
	timeout time.Duration
}

func NewPDFTextLoader(raw loader.TextLoader, timeout time.Duration) *PDFTextLoader {
	return &PDFTextLoader{raw: raw, timeout: timeout}
}

func (l *PDFTextLoader) LoadText(ctx context.Context, location string) ([]byte, error) {
	content, err := l.raw.LoadText(ctx, location)
	if err != nil {
		return nil, err
	}
	if !IsPDF(content) {
		return content, nil
	}
	return ExtractText(ctx, content, l.timeout)
}
