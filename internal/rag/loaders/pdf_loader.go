package loaders

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/ledongthuc/pdf"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// PdfLoader implements the Loader interface for reading PDF files, the
// usual container for filings and broker research.
type PdfLoader struct {
	sourceType schema.SourceType
}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader(sourceType schema.SourceType) *PdfLoader {
	return &PdfLoader{sourceType: sourceType}
}

// Load extracts the plain text of the PDF and returns it as a single
// Document.
func (l *PdfLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, fmt.Errorf("failed to read text of %s: %w", path, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("no text extracted from %s", path)
	}

	name := filepath.Base(path)
	doc := &schema.Document{
		DocID:   name,
		RawText: buf.String(),
		Metadata: schema.Metadata{
			SourceType: l.sourceType,
			FetchedAt:  time.Now().UTC(),
			Fields: map[string]string{
				schema.MetadataKeyFileName: name,
			},
		},
	}

	return []*schema.Document{doc}, nil
}

// compile-time check to ensure PdfLoader implements the Loader interface
var _ interfaces.Loader = (*PdfLoader)(nil)
