package pipeline

import (
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// TokenCounter sizes and truncates text in the same token unit the chunker
// uses, so the assembler's budget is consistent with chunk token counts.
// *splitters.SentenceSplitter satisfies it.
type TokenCounter interface {
	TokenCount(text string) int
	Truncate(text string, maxTokens int) string
}

// ContextAssembler packs ranked evidence into a fixed token budget while
// preserving the citation mapping. Chunk text is included verbatim; only
// the first item may be truncated, and only when it alone exceeds the
// whole budget.
type ContextAssembler struct {
	counter TokenCounter
	budget  int
	log     *logger.Logger
}

// NewContextAssembler creates an assembler with the given token budget.
func NewContextAssembler(counter TokenCounter, budgetTokens int, log *logger.Logger) *ContextAssembler {
	return &ContextAssembler{counter: counter, budget: budgetTokens, log: log}
}

// Assemble greedily adds evidence in rank order until the next item would
// exceed the budget. If even the first item does not fit it is truncated
// at a token boundary and marked partial: when evidence exists the
// assembled context is never empty. Citation ids are 1-based and assigned
// in assembly order.
func (a *ContextAssembler) Assemble(evidence []schema.EvidenceItem) schema.AssembledContext {
	actx := schema.AssembledContext{Budget: a.budget}

	for _, ev := range evidence {
		tokens := ev.Chunk.TokenCount
		if tokens <= 0 {
			tokens = a.counter.TokenCount(ev.Chunk.Text)
		}

		if actx.TotalTokens+tokens > a.budget {
			if len(actx.Items) > 0 {
				break
			}
			// First item over budget: include it truncated rather than
			// return an empty context.
			text := a.counter.Truncate(ev.Chunk.Text, a.budget)
			tokens = a.counter.TokenCount(text)
			a.log.WithPayload(map[string]interface{}{
				"chunk_id": ev.Chunk.ChunkID,
				"budget":   a.budget,
			}).Warn("first evidence item exceeds the context budget, truncating")
			actx.Items = append(actx.Items, schema.ContextItem{
				CitationID: 1,
				Chunk:      ev.Chunk,
				Text:       text,
				Score:      ev.Score,
				Tokens:     tokens,
				Partial:    true,
			})
			actx.TotalTokens += tokens
			break
		}

		actx.Items = append(actx.Items, schema.ContextItem{
			CitationID: len(actx.Items) + 1,
			Chunk:      ev.Chunk,
			Text:       ev.Chunk.Text,
			Score:      ev.Score,
			Tokens:     tokens,
		})
		actx.TotalTokens += tokens
	}

	return actx
}
