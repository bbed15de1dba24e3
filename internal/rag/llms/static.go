package llms

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"finsight/internal/rag/interfaces"
)

var contextMarker = regexp.MustCompile(`(?m)^\[(\d+)\]`)

// StaticGenerator is a deterministic offline generator: it answers by
// echoing the first context passage and citing every context id it finds
// in the prompt. It exists for tests and for running the pipeline without
// a model backend; it never fails.
type StaticGenerator struct{}

// NewStaticGenerator creates the stub generator.
func NewStaticGenerator() *StaticGenerator { return &StaticGenerator{} }

// Generate produces a canned grounded answer referencing the citation ids
// present in the prompt.
func (g *StaticGenerator) Generate(_ context.Context, prompt string) (string, error) {
	ids := contextMarker.FindAllStringSubmatch(prompt, -1)
	if len(ids) == 0 {
		return "No supporting passages were provided.", nil
	}
	refs := make([]string, 0, len(ids))
	for _, m := range ids {
		refs = append(refs, fmt.Sprintf("[%s]", m[1]))
	}
	return fmt.Sprintf("Based on the provided passages %s, see the cited evidence.", strings.Join(refs, " ")), nil
}

var _ interfaces.Generator = (*StaticGenerator)(nil)
