package source

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned by Ensure for indexes outside [0, Total).
	ErrOutOfRange = errors.New("word index out of range")

	// ErrEmptyDocument is returned when a document has no words.
	ErrEmptyDocument = errors.New("document has no words")

	// ErrInvalidSegments is returned when segments are not contiguous.
	ErrInvalidSegments = errors.New("invalid segment table")

	// ErrSourceClosed is returned once Close has been called.
	ErrSourceClosed = errors.New("word source closed")
)

// ErrorCode identifies why a segment could not be loaded.
type ErrorCode string

const (
	// CodeParseFailure means the provider failed to return the text.
	CodeParseFailure ErrorCode = "PARSE_FAILURE"
	// CodeCountMismatch means the text tokenized to a different word count
	// than the segment table promised.
	CodeCountMismatch ErrorCode = "COUNT_MISMATCH"
)

// SegmentError reports a failed segment load. The cache is left untouched.
type SegmentError struct {
	Code    ErrorCode
	Segment string
	Cause   error
}

// Error implements the error interface.
func (e *SegmentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: segment %s: %v", e.Code, e.Segment, e.Cause)
	}
	return fmt.Sprintf("%s: segment %s", e.Code, e.Segment)
}

// Unwrap returns the underlying error.
func (e *SegmentError) Unwrap() error {
	return e.Cause
}
