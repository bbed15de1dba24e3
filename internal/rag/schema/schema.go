package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Metadata keys that are always present in filter views and index entries.
const (
	// MetadataKeySourceType carries the Document's SourceType as a string.
	MetadataKeySourceType = "source_type"
	// MetadataKeyDocID carries the owning Document's id.
	MetadataKeyDocID = "doc_id"
	// MetadataKeySection is the section heading a chunk was cut from, if known.
	MetadataKeySection = "section"
	// MetadataKeyFileName is the source file name for file-loaded documents.
	MetadataKeyFileName = "file_name"
)

// SourceType classifies where a Document came from.
type SourceType string

const (
	SourceMarketData  SourceType = "market-data"
	SourceFiling      SourceType = "filing"
	SourceMacro       SourceType = "macro"
	SourceEducational SourceType = "educational"
)

// Valid reports whether the source type is one of the known values.
func (s SourceType) Valid() bool {
	switch s {
	case SourceMarketData, SourceFiling, SourceMacro, SourceEducational:
		return true
	}
	return false
}

// Metadata is the typed metadata attached to Documents and inherited by
// their Chunks. Fields holds free-form string attributes (ticker, section,
// file name); SourceType and FetchedAt are kept as typed fields so filter
// predicates stay well-defined.
type Metadata struct {
	SourceType SourceType        `json:"source_type" bson:"source_type"`
	FetchedAt  time.Time         `json:"fetched_at" bson:"fetched_at"`
	Fields     map[string]string `json:"fields,omitempty" bson:"fields,omitempty"`
}

// Matches reports whether every key/value pair in filter matches this
// metadata exactly. The reserved key "source_type" compares against the
// typed SourceType; every other key looks up Fields.
func (m Metadata) Matches(filter map[string]string) bool {
	for key, want := range filter {
		var got string
		switch key {
		case MetadataKeySourceType:
			got = string(m.SourceType)
		default:
			got = m.Fields[key]
		}
		if got != want {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so chunks never share a Fields map with their
// document or with each other.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Fields != nil {
		out.Fields = make(map[string]string, len(m.Fields))
		for k, v := range m.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// Document is the raw unit of financial text handed to the ingestion
// boundary: a filing excerpt, a normalized API response, a glossary entry.
// Documents are immutable once ingested; re-ingesting the same DocID
// replaces all derived chunks and index entries.
type Document struct {
	DocID    string   `json:"doc_id" bson:"_id"`
	RawText  string   `json:"raw_text" bson:"raw_text"`
	Metadata Metadata `json:"metadata" bson:"metadata"`
}

// Chunk is a contiguous slice of a Document's text, the atomic unit of
// retrieval. StartOffset/EndOffset are byte offsets into the document's
// RawText; Text is the verbatim slice.
type Chunk struct {
	ChunkID     string   `json:"chunk_id" bson:"_id"`
	DocID       string   `json:"doc_id" bson:"doc_id"`
	Text        string   `json:"text" bson:"text"`
	StartOffset int      `json:"start_offset" bson:"start_offset"`
	EndOffset   int      `json:"end_offset" bson:"end_offset"`
	TokenCount  int      `json:"token_count" bson:"token_count"`
	Metadata    Metadata `json:"metadata" bson:"metadata"`
}

// ChunkID derives the deterministic id for a chunk of the given document
// span. Re-chunking the same document with the same policy therefore always
// produces the same ids, which is what makes re-indexing idempotent.
func ChunkID(docID string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", docID, start, end)))
	return hex.EncodeToString(sum[:])[:16]
}

// FilterView flattens a chunk's metadata into the exact-match view the
// vector index filters on.
func (c *Chunk) FilterView() map[string]string {
	view := make(map[string]string, len(c.Metadata.Fields)+2)
	for k, v := range c.Metadata.Fields {
		view[k] = v
	}
	view[MetadataKeySourceType] = string(c.Metadata.SourceType)
	view[MetadataKeyDocID] = c.DocID
	return view
}

// SearchHit is one ranked entry returned by a VectorIndex search.
type SearchHit struct {
	ChunkID string  `json:"chunk_id"`
	Score   float32 `json:"score"`
}

// EvidenceItem is a scored, ranked chunk returned by the retriever.
// Rank is 1-based in descending score order.
type EvidenceItem struct {
	Chunk *Chunk  `json:"chunk"`
	Score float32 `json:"score"`
	Rank  int     `json:"rank"`
}

// ContextItem is an evidence item selected into the prompt, tagged with its
// citation id. Text is verbatim chunk text unless Partial is set, in which
// case it was truncated at a boundary to fit the budget.
type ContextItem struct {
	CitationID int     `json:"citation_id"`
	Chunk      *Chunk  `json:"chunk"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	Tokens     int     `json:"tokens"`
	Partial    bool    `json:"partial,omitempty"`
}

// AssembledContext is the ordered evidence selected for the prompt.
// Citation ids are contiguous and 1-based in assembly order.
type AssembledContext struct {
	Items       []ContextItem `json:"items"`
	TotalTokens int           `json:"total_tokens"`
	Budget      int           `json:"budget"`
}

// Citation resolves the item carrying the given citation id, or nil.
func (a *AssembledContext) Citation(id int) *ContextItem {
	if id < 1 || id > len(a.Items) {
		return nil
	}
	// Ids are assigned contiguously in assembly order.
	return &a.Items[id-1]
}

// Citation points an answer segment back at the originating document span.
type Citation struct {
	DocID       string `json:"doc_id"`
	ChunkID     string `json:"chunk_id"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// AnsweredResult is the single result type returned to callers of Ask.
// It is always well-formed: pipeline failures surface as a fallback
// AnswerText plus Degraded, never as an error.
type AnsweredResult struct {
	AnswerText   string           `json:"answer_text"`
	Citations    map[int]Citation `json:"citations"`
	EvidenceUsed AssembledContext `json:"evidence_used"`
	Degraded     bool             `json:"degraded"`
}
