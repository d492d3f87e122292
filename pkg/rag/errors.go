package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can decide between
// degraded answers and hard errors.
type ErrorKind string

const (
	// KindRetrieval covers vector store and embedding failures during
	// search. The pipeline degrades these to empty retrieval.
	KindRetrieval ErrorKind = "retrieval"
	// KindGenerationProvider covers failures of the completion provider.
	KindGenerationProvider ErrorKind = "generation_provider"
	// KindSchemaValidation covers provider output that does not parse
	// into the expected question schema.
	KindSchemaValidation ErrorKind = "schema_validation"
	// KindBuild covers knowledge base construction failures.
	KindBuild ErrorKind = "build"
)

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

var (
	// ErrModelMismatch means the stored index was built with a different
	// embedding model than the one configured now.
	ErrModelMismatch = errors.New("knowledge base was built with a different embedding model")
	// ErrNotReady means the knowledge base has not been built or loaded.
	ErrNotReady = errors.New("knowledge base not initialized")
	// ErrIndexExists means Build without force found an existing index.
	ErrIndexExists = errors.New("knowledge base already exists")
)
