package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches any row that fails schema validation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a commit would violate the natural key
	// uniqueness constraint, typically after losing a race with a concurrent
	// ingestion that introduced the same key.
	ErrConflict = errors.New("unique constraint violation on (part_number, branch_id)")

	// ErrUnavailable wraps storage, broker or search transport failures.
	ErrUnavailable = errors.New("service unavailable")

	// ErrJobNotFound is returned for unknown or expired job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueFull is returned when the dispatcher cannot accept more jobs.
	ErrQueueFull = errors.New("job queue full")

	// ErrUnknownDatabase is returned when a job names a connection descriptor
	// the worker was not configured with.
	ErrUnknownDatabase = errors.New("unknown database descriptor")

	// ErrNoFile is returned when an upload request carries no file part.
	ErrNoFile = errors.New("no file provided")

	// ErrInvalidQuery is returned for negative skip or limit values.
	ErrInvalidQuery = errors.New("invalid query parameter")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")
)

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// RowError collects every validation failure of one data row.
type RowError struct {
	Line   int // 1-based line in the document
	Errors []ValidationError
}

func (e *RowError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		parts[i] = ve.Error()
	}
	return fmt.Sprintf("line %d: %s", e.Line, strings.Join(parts, "; "))
}

// Is makes every RowError match ErrValidation.
func (e *RowError) Is(target error) bool {
	return target == ErrValidation
}

// Fields returns the names of the offending fields.
func (e *RowError) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		fields[i] = ve.Field
	}
	return fields
}

// IngestError is the single failure outcome of an ingestion document.
// Nothing from the document was committed when it is returned.
type IngestError struct {
	Line int // 0 when the failure is not tied to a row (commit, begin)
	Err  error
}

func (e *IngestError) Error() string {
	if errors.Is(e.Err, ErrConflict) {
		return fmt.Sprintf("integrity error during commit: %v", e.Err)
	}
	if e.Line > 0 {
		var rowErr *RowError
		if errors.As(e.Err, &rowErr) {
			return "ingest failed at " + rowErr.Error()
		}
		return fmt.Sprintf("ingest failed at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("ingest failed: %v", e.Err)
}

func (e *IngestError) Unwrap() error {
	return e.Err
}
