package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spacebio/knowledge-engine/backend/pkg/loader/pdf"

	"codeberg.org/readeck/go-readability/v2"
)

// maxBody caps downloaded documents.
const maxBody = 64 << 20

// WebTextLoader fetches a URL and extracts readable text. HTML pages go
// through readability; PDF responses go through pdftotext; anything else is
// returned as-is.
type WebTextLoader struct {
	client     *http.Client
	pdfTimeout time.Duration
	userAgent  string
}

type NewWebTextLoaderParams struct {
	Timeout    time.Duration
	PDFTimeout time.Duration
	UserAgent  string
	Client     *http.Client
}

func NewWebTextLoader(params NewWebTextLoaderParams) *WebTextLoader {
	client := params.Client
	if client == nil {
		timeout := params.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := params.UserAgent
	if ua == "" {
		ua = "knowledge-engine/1.0"
	}
	return &WebTextLoader{client: client, pdfTimeout: params.PDFTimeout, userAgent: ua}
}

func (l *WebTextLoader) LoadText(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/pdf") || pdf.IsPDF(body):
		return pdf.ExtractText(ctx, body, l.pdfTimeout)
	case strings.Contains(contentType, "text/html"):
		return htmlText(body, u)
	}
	return body, nil
}

func htmlText(body []byte, u *url.URL) ([]byte, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return nil, fmt.Errorf("failed to render article text: %w", err)
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return nil, fmt.Errorf("no readable text in %s", u)
	}
	return []byte(pdf.CleanText(text)), nil
}
