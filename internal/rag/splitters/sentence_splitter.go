package splitters

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
)

// SentenceSplitter chunks documents by token count while preferring to cut
// at sentence boundaries. The size policy is soft: a single sentence longer
// than the target is emitted whole, never split mid-token.
//
// Splitting is deterministic: the same document under the same policy
// always yields the same spans, and chunk ids are derived from those spans,
// so re-chunking is idempotent.
type SentenceSplitter struct {
	TargetTokens   int
	OverlapTokens  int
	BoundaryTokens int
	tokenizer      *tiktoken.Tiktoken
}

// NewSentenceSplitter creates a splitter with the given policy. Sizes are
// in tokens of the cl100k_base encoding.
func NewSentenceSplitter(targetTokens, overlapTokens, boundaryTokens int) (*SentenceSplitter, error) {
	if targetTokens <= 0 {
		return nil, fmt.Errorf("target tokens must be positive, got %d", targetTokens)
	}
	if overlapTokens < 0 || overlapTokens >= targetTokens {
		return nil, fmt.Errorf("overlap tokens must be in [0, target), got %d", overlapTokens)
	}
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding: %w", err)
	}
	return &SentenceSplitter{
		TargetTokens:   targetTokens,
		OverlapTokens:  overlapTokens,
		BoundaryTokens: boundaryTokens,
		tokenizer:      tke,
	}, nil
}

// sentence is one sentence span of the document text, trailing whitespace
// included so that consecutive spans tile the text without gaps.
type sentence struct {
	start  int
	end    int
	tokens int
}

// Chunk splits the document into overlapping chunks. The union of the
// returned spans covers [0, len(RawText)); neighbouring chunks overlap by
// at most the configured overlap window.
func (s *SentenceSplitter) Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Chunk, error) {
	if doc.RawText == "" {
		return nil, nil
	}

	sentences := s.splitSentences(doc.RawText)

	var chunks []*schema.Chunk
	start := 0 // index of the first sentence of the current chunk
	for start < len(sentences) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start // exclusive index of the last sentence of the chunk
		total := 0
		for end < len(sentences) {
			next := total + sentences[end].tokens
			if end > start && next > s.TargetTokens {
				// Back off to the sentence boundary unless we are still
				// within the tolerance window around the target.
				if next-s.TargetTokens > s.BoundaryTokens {
					break
				}
				total = next
				end++
				break
			}
			total = next
			end++
			if total >= s.TargetTokens {
				break
			}
		}

		chunks = append(chunks, s.emit(doc, sentences[start].start, sentences[end-1].end, total))

		if end == len(sentences) {
			break
		}
		start = s.overlapStart(sentences, start, end)
	}

	return chunks, nil
}

// overlapStart picks the first sentence of the next chunk: back up from the
// cut to include trailing sentences worth at most OverlapTokens, always
// advancing past the current chunk's first sentence.
func (s *SentenceSplitter) overlapStart(sentences []sentence, start, end int) int {
	next := end
	carried := 0
	for next > start+1 {
		carried += sentences[next-1].tokens
		if carried > s.OverlapTokens {
			break
		}
		next--
	}
	return next
}

func (s *SentenceSplitter) emit(doc *schema.Document, start, end, tokens int) *schema.Chunk {
	return &schema.Chunk{
		ChunkID:     schema.ChunkID(doc.DocID, start, end),
		DocID:       doc.DocID,
		Text:        doc.RawText[start:end],
		StartOffset: start,
		EndOffset:   end,
		TokenCount:  tokens,
		Metadata:    doc.Metadata.Clone(),
	}
}

// splitSentences segments text into sentence spans. A sentence ends after
// '.', '!' or '?' (plus any closing quote) once the following whitespace is
// consumed, or after a blank line. The spans tile the whole text.
func (s *SentenceSplitter) splitSentences(text string) []sentence {
	var spans []sentence
	start := 0
	pending := false // saw a terminator, waiting for the next sentence to begin
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if pending && !unicode.IsSpace(r) && r != '"' && r != '\'' && r != ')' {
			spans = append(spans, s.span(text, start, i))
			start = i
			pending = false
		}
		switch r {
		case '.', '!', '?':
			pending = true
		case '\n':
			// A blank line terminates a sentence even without punctuation.
			if i+1 < len(text) && text[i+1] == '\n' {
				pending = true
			}
		}
		i += size
	}
	if start < len(text) {
		spans = append(spans, s.span(text, start, len(text)))
	}
	return spans
}

func (s *SentenceSplitter) span(text string, start, end int) sentence {
	return sentence{
		start:  start,
		end:    end,
		tokens: len(s.tokenizer.Encode(text[start:end], nil, nil)),
	}
}

// TokenCount counts tokens the same way the splitter sizes chunks, so the
// assembler's budget uses a consistent unit.
func (s *SentenceSplitter) TokenCount(text string) int {
	return len(s.tokenizer.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens, decoding back at a token
// boundary. Used when a single evidence item exceeds the context budget.
func (s *SentenceSplitter) Truncate(text string, maxTokens int) string {
	tokens := s.tokenizer.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return s.tokenizer.Decode(tokens[:maxTokens])
}

var _ interfaces.Chunker = (*SentenceSplitter)(nil)
