package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	// ErrNotFound signals a missing index, document, or metrics file. It is
	// distinct from an empty search result: callers can tell "not built yet"
	// apart from "no matches".
	ErrNotFound = errors.New("not found")

	// ErrIndexExists signals that an index is already present at the target
	// location. Builds are idempotent; delete the index to force a rebuild.
	ErrIndexExists = errors.New("index already exists")
)

// GatewayError reports a failed embedding or completion call after all
// retries were exhausted. It is fatal to the current query.
type GatewayError struct {
	Gateway string // "embedding" or "completion"
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ExtractionError reports that a single document failed to parse during
// indexing. The builder logs it, records the document as skipped, and
// continues.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StepError identifies which orchestration step a query failed in, so the
// caller can diagnose without retrying blindly.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
