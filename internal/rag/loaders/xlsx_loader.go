package loaders

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// XlsxLoader implements the Loader interface for reading Excel (.xlsx)
// workbooks, the common shape of exported market data tables.
type XlsxLoader struct {
	sourceType schema.SourceType
}

// NewXlsxLoader creates a new XlsxLoader.
func NewXlsxLoader(sourceType schema.SourceType) *XlsxLoader {
	return &XlsxLoader{sourceType: sourceType}
}

// Load converts each sheet to a Markdown table and returns a Document per
// sheet. The sheet name is part of the document id so individual sheets
// supersede independently on reload.
func (l *XlsxLoader) Load(ctx context.Context, path string) ([]*schema.Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	fetchedAt := time.Now().UTC()

	var documents []*schema.Document
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			// Skip sheets that cannot be read or hold no data.
			continue
		}

		var md strings.Builder
		md.WriteString("| " + strings.Join(rows[0], " | ") + " |\n")
		md.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
		for _, row := range rows[1:] {
			md.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}

		documents = append(documents, &schema.Document{
			DocID:   fmt.Sprintf("%s#%s", name, sheetName),
			RawText: md.String(),
			Metadata: schema.Metadata{
				SourceType: l.sourceType,
				FetchedAt:  fetchedAt,
				Fields: map[string]string{
					schema.MetadataKeyFileName: name,
					schema.MetadataKeySection:  sheetName,
				},
			},
		})
	}

	return documents, nil
}

// compile-time check to ensure XlsxLoader implements the Loader interface
var _ interfaces.Loader = (*XlsxLoader)(nil)
