package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrUnbuiltIndex      = errors.New("query issued before any document was indexed")
	ErrExternalCall      = errors.New("external call failed")
	ErrEmptyDocument     = errors.New("document contains no text")
)

// NotAvailableAnswer is returned when retrieval finds nothing to answer from.
const NotAvailableAnswer = "The answer is not available in the provided document section."

// DimensionError reports a vector whose length disagrees with the index dimension.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, want %d", e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimensionMismatch }

// ExternalCallError wraps a failed Embedder or Generator invocation.
type ExternalCallError struct {
	Collaborator string
	Op           string
	Attempts     int
	Err          error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Collaborator, e.Op, e.Attempts, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

func (e *ExternalCallError) Is(target error) bool { return target == ErrExternalCall }

// UnsupportedFormatError names the document type the extractor could not handle.
type UnsupportedFormatError struct {
	Name         string
	DeclaredType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q for %s", e.DeclaredType, e.Name)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }
