package loaders

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// entry binds a loader to the MIME types and extensions it accepts.
type entry struct {
	loader     interfaces.Loader
	mimeTypes  []string
	extensions []string
}

// Registry routes a file to the right loader by sniffing its content type,
// falling back to the extension for formats MIME detection cannot tell
// apart from plain text.
type Registry struct {
	entries []entry
}

// NewRegistry creates a registry with all file loaders registered,
// tagging every produced document with the given source type.
func NewRegistry(sourceType schema.SourceType) *Registry {
	r := &Registry{}
	r.Register(NewPdfLoader(sourceType), []string{"application/pdf"}, []string{".pdf"})
	r.Register(NewXlsxLoader(sourceType),
		[]string{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		[]string{".xlsx"})
	r.Register(NewMarkdownLoader(sourceType), []string{"text/markdown"}, []string{".md", ".markdown"})
	r.Register(NewTxtLoader(sourceType), []string{"text/plain"}, []string{".txt"})
	return r
}

// Register adds a loader for the given MIME types and extensions.
func (r *Registry) Register(loader interfaces.Loader, mimeTypes, extensions []string) {
	r.entries = append(r.entries, entry{loader: loader, mimeTypes: mimeTypes, extensions: extensions})
}

// Load detects the file's content type and dispatches to the matching
// loader.
func (r *Registry) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect MIME type of %s: %w", path, err)
	}

	for _, e := range r.entries {
		if accepts(mtype, e.mimeTypes, e.extensions) {
			return e.loader.Load(ctx, path)
		}
	}
	return nil, fmt.Errorf("no loader registered for MIME type %s (%s)", mtype.String(), path)
}

func accepts(mtype *mimetype.MIME, mimeTypes, extensions []string) bool {
	for _, m := range mimeTypes {
		if mtype.Is(m) {
			return true
		}
	}
	for _, ext := range extensions {
		if mtype.Extension() == ext {
			return true
		}
	}
	return false
}

// compile-time check to ensure Registry implements the Loader interface
var _ interfaces.Loader = (*Registry)(nil)
