package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"smart-query/internal/domain"
)

// maxDocumentSize bounds how large a fetched document may be.
const maxDocumentSize = 50 * 1024 * 1024 // 50MB

// PDFFetcher downloads a PDF over HTTP and extracts its text page by page.
type PDFFetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewPDFFetcher creates a fetcher with a sane download timeout.
func NewPDFFetcher(logger *slog.Logger) *PDFFetcher {
	return &PDFFetcher{
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: logger,
	}
}

// Fetch downloads the document at url and returns one entry per page with
// extractable text. Pages that yield no text are skipped.
func (f *PDFFetcher) Fetch(ctx context.Context, url string) ([]domain.DocumentPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			fmt.Sprintf("create request: %v", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			fmt.Sprintf("download: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			fmt.Sprintf("download: HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			fmt.Sprintf("read body: %v", err))
	}
	if len(data) > maxDocumentSize {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			fmt.Sprintf("document exceeds %d bytes", maxDocumentSize))
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, domain.NewDomainError("ingest.fetch", domain.ErrDocumentFetch,
			"not a PDF document")
	}

	pages, err := extractPages(data)
	if err != nil {
		return nil, err
	}

	f.logger.Info("document fetched", "url", url, "bytes", len(data), "pages", len(pages))
	return pages, nil
}

// extractPages parses the PDF and pulls plain text out of each page.
func extractPages(data []byte) ([]domain.DocumentPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.NewDomainError("ingest.parse", domain.ErrDocumentExtract,
			fmt.Sprintf("parse pdf: %v", err))
	}

	var pages []domain.DocumentPage
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			// A single damaged page should not sink the whole document.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		pages = append(pages, domain.DocumentPage{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, domain.NewDomainError("ingest.parse", domain.ErrDocumentExtract,
			"no extractable text in document")
	}
	return pages, nil
}
