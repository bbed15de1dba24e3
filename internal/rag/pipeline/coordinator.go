package pipeline

import (
	"context"
	"time"

	"finsight/internal/rag/interfaces"
	"finsight/internal/rag/schema"
	"finsight/pkg/logger"
)

// Answer texts used when the pipeline cannot produce a grounded answer.
// They are part of the boundary contract: Ask always returns a result,
// failures only show through the degraded flag and these texts.
const (
	fallbackAnswer = "The answer could not be generated right now. Please try again later."
	noCorpusAnswer = "No documents have been indexed yet, so there is no evidence to answer from."
	noMatchAnswer  = "No sufficiently relevant evidence was found for this question."
)

// CoordinatorPolicy bounds the coordinator's failure handling. Timeouts
// apply per model call attempt; everything else in the pipeline is
// in-process and runs uncapped.
type CoordinatorPolicy struct {
	RetryAttempts   int
	InitialBackoff  time.Duration
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration
	MinEvidence     int
}

// Coordinator wires retrieval, assembly and generation into the single
// Ask operation and owns the failure policy around the model backends.
// It holds no per-query state; one Coordinator serves concurrent Ask
// calls over the shared index.
type Coordinator struct {
	retriever *Retriever
	assembler *ContextAssembler
	qa        *QAPipeline
	index     interfaces.VectorIndex
	policy    CoordinatorPolicy
	log       *logger.Logger
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(
	retriever *Retriever,
	assembler *ContextAssembler,
	qa *QAPipeline,
	index interfaces.VectorIndex,
	policy CoordinatorPolicy,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		retriever: retriever,
		assembler: assembler,
		qa:        qa,
		index:     index,
		policy:    policy,
		log:       log,
	}
}

// Ask answers a free-text question from the indexed corpus. It never
// returns an error: every failure path produces a well-formed result with
// the degraded flag set and an explanatory answer text.
func (c *Coordinator) Ask(ctx context.Context, question string) *schema.AnsweredResult {
	return c.AskFiltered(ctx, question, nil)
}

// AskFiltered is Ask restricted to evidence whose metadata matches the
// filter exactly (e.g. source_type=filing).
func (c *Coordinator) AskFiltered(ctx context.Context, question string, filter map[string]string) *schema.AnsweredResult {
	result := &schema.AnsweredResult{Citations: map[int]schema.Citation{}}

	count, err := c.index.Count(ctx)
	if err != nil {
		c.log.WithError(err).Error("failed to read index size")
		result.AnswerText = fallbackAnswer
		result.Degraded = true
		return result
	}
	if count == 0 {
		// An empty corpus is not a failure: state it and skip generation.
		result.AnswerText = noCorpusAnswer
		result.Degraded = true
		return result
	}

	var evidence []schema.EvidenceItem
	err = withRetry(ctx, c.policy.RetryAttempts, c.policy.InitialBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.policy.RetrieveTimeout)
		defer cancel()
		var rerr error
		evidence, rerr = c.retriever.Retrieve(callCtx, question, filter)
		return rerr
	})
	if err != nil {
		c.log.WithError(err).Error("retrieval failed after retries")
		result.AnswerText = fallbackAnswer
		result.Degraded = true
		return result
	}

	if len(evidence) == 0 {
		result.AnswerText = noMatchAnswer
		result.Degraded = true
		return result
	}
	result.Degraded = len(evidence) < c.policy.MinEvidence

	actx := c.assembler.Assemble(evidence)
	result.EvidenceUsed = actx

	var answer string
	var used []int
	err = withRetry(ctx, c.policy.RetryAttempts, c.policy.InitialBackoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.policy.GenerateTimeout)
		defer cancel()
		var qerr error
		answer, used, qerr = c.qa.Run(callCtx, question, &actx)
		return qerr
	})
	if err != nil {
		c.log.WithError(err).Error("generation failed after retries")
		result.AnswerText = fallbackAnswer
		result.Degraded = true
		return result
	}

	result.AnswerText = answer
	for _, id := range used {
		item := actx.Citation(id)
		if item == nil {
			continue
		}
		result.Citations[id] = schema.Citation{
			DocID:       item.Chunk.DocID,
			ChunkID:     item.Chunk.ChunkID,
			StartOffset: item.Chunk.StartOffset,
			EndOffset:   item.Chunk.EndOffset,
		}
	}
	return result
}
