package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// QAPipeline builds the grounded prompt, calls the generator, and maps
// citation markers in the answer back to the assembled context. Markers
// referencing ids that were never in the context are dropped, so a
// hallucinated id can never surface as a valid citation.
type QAPipeline struct {
	generator interfaces.Generator
	log       *logger.Logger
}

// NewQAPipeline creates a new QAPipeline.
func NewQAPipeline(generator interfaces.Generator, log *logger.Logger) *QAPipeline {
	return &QAPipeline{generator: generator, log: log}
}

// Run generates an answer for the question over the assembled context and
// returns the validated citation ids in order of first use.
func (p *QAPipeline) Run(ctx context.Context, question string, actx *schema.AssembledContext) (string, []int, error) {
	prompt := p.buildPrompt(question, actx)

	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", nil, fmt.Errorf("generation failed: %w", err)
	}

	return answer, p.extractCitations(answer, actx), nil
}

// buildPrompt prefixes every context passage with its citation id and
// instructs the backend to cite ids inline.
func (p *QAPipeline) buildPrompt(question string, actx *schema.AssembledContext) string {
	var sb strings.Builder

	sb.WriteString("Answer the question using only the numbered passages below. ")
	sb.WriteString("Cite the passages you rely on inline as [1], [2] and so on. ")
	sb.WriteString("If the passages do not contain the answer, say so.\n\nPassages:\n")

	for _, item := range actx.Items {
		sb.WriteString(fmt.Sprintf("[%d] %s\n---\n", item.CitationID, item.Text))
	}

	sb.WriteString(fmt.Sprintf("\nQuestion: %s", question))
	return sb.String()
}

// extractCitations scans the answer for [n] markers and keeps each valid
// id once, in order of first appearance. Unknown ids are logged and
// dropped rather than surfaced.
func (p *QAPipeline) extractCitations(answer string, actx *schema.AssembledContext) []int {
	var used []int
	seen := make(map[int]bool)
	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if actx.Citation(id) == nil {
			p.log.WithField("citation_id", id).Warn("answer cites an id that is not in the context, dropping")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		used = append(used, id)
	}
	return used
}
