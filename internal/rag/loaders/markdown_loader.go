package loaders

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// MarkdownLoader implements the Loader interface for reading Markdown
// (.md) files.
type MarkdownLoader struct {
	sourceType schema.SourceType
}

// NewMarkdownLoader creates a new MarkdownLoader.
func NewMarkdownLoader(sourceType schema.SourceType) *MarkdownLoader {
	return &MarkdownLoader{sourceType: sourceType}
}

// headingRegex matches the first top-level heading, used as the section tag.
var headingRegex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// Load reads a Markdown file and returns it as a single Document. The
// first top-level heading, when present, is recorded as the section so
// retrieval filters can target it.
func (l *MarkdownLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := string(content)

	name := filepath.Base(path)
	fields := map[string]string{
		schema.MetadataKeyFileName: name,
	}
	if m := headingRegex.FindStringSubmatch(text); m != nil {
		fields[schema.MetadataKeySection] = strings.TrimSpace(m[1])
	}

	doc := &schema.Document{
		DocID:   name,
		RawText: text,
		Metadata: schema.Metadata{
			SourceType: l.sourceType,
			FetchedAt:  time.Now().UTC(),
			Fields:     fields,
		},
	}

	return []*schema.Document{doc}, nil
}

// compile-time check to ensure MarkdownLoader implements the Loader interface
var _ interfaces.Loader = (*MarkdownLoader)(nil)
