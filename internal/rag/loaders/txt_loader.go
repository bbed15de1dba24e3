package loaders

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// TxtLoader implements the Loader interface for reading plain text files.
type TxtLoader struct {
	sourceType schema.SourceType
}

// NewTxtLoader creates a new TxtLoader tagging documents with the given
// source type.
func NewTxtLoader(sourceType schema.SourceType) *TxtLoader {
	return &TxtLoader{sourceType: sourceType}
}

// Load reads a text file from the given path and returns it as a single
// Document. The file name doubles as the document id, so reloading the
// same file supersedes the previous version instead of duplicating it.
func (l *TxtLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	doc := &schema.Document{
		DocID:   name,
		RawText: string(content),
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

// compile-time check to ensure TxtLoader implements the Loader interface
var _ interfaces.Loader = (*TxtLoader)(nil)
