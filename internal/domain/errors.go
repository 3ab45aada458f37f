package domain

import "errors"

// Sentinel errors for the pipeline. Callers match with errors.Is; call sites
// wrap with fmt.Errorf("%w: ...") to add detail.
var (
	// Input errors: surfaced immediately, never retried.
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("text extraction failed")

	// ErrTransient marks service failures (timeout, rate limit, 5xx) that are
	// safe to retry with backoff.
	ErrTransient = errors.New("transient service error")

	// Terminal service errors after retries are exhausted.
	ErrEmbedding  = errors.New("embedding failed")
	ErrGeneration = errors.New("generation failed")

	// ErrConsistency signals index/store disagreement or a vector dimension
	// mismatch. Never retried; the in-flight operation rolls back.
	ErrConsistency = errors.New("consistency violation")

	ErrNotFound       = errors.New("not found")
	ErrDocumentExists = errors.New("document already exists")

	// ErrBudgetTooSmall: the preamble plus current query alone exceed the
	// assembly budget.
	ErrBudgetTooSmall = errors.New("context budget too small")
)

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
