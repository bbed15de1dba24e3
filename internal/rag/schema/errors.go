package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable marks an embedding backend failure. Callers
	// may retry; the backend itself never does.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrGenerationUnavailable marks an answer-generation backend failure.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")

	// ErrEmptyCorpus means the vector index holds zero entries. It is a
	// signal, not a failure: queries against an empty corpus still produce
	// a well-formed result.
	ErrEmptyCorpus = errors.New("vector index is empty")
)

// DimensionMismatchError reports a vector whose length does not match the
// index dimension. This is always a configuration or programming error and
// is never retried.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: index expects %d, got %d", e.Want, e.Got)
}

// IsDimensionMismatch reports whether err wraps a DimensionMismatchError.
func IsDimensionMismatch(err error) bool {
	var dm *DimensionMismatchError
	return errors.As(err, &dm)
}
