package analyzer

import "fmt"

// ValidationError reports a malformed or contradictory request. Surfaced to
// the caller as a client error.
type ValidationError struct {
	Code string // e.g. "empty_input", "invalid_source_type"
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Code, e.Msg)
}

// NormalizationError reports that a source produced no extractable text.
type NormalizationError struct {
	Code string // "no_extractable_text"
	Msg  string
	Err  error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("normalization: %s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("normalization: %s: %s", e.Code, e.Msg)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// PersistenceError reports a storage write failure. The computed record is
// attached so the immediate caller can still receive the analysis result; it
// is not retrievable through the record endpoints.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
