package ingest

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the worker can report it.
type ErrorKind string

// Error kinds reported in status updates.
const (
	KindMalformedMessage   ErrorKind = "MALFORMED_MESSAGE"
	KindUnsupportedType    ErrorKind = "UNSUPPORTED_TYPE"
	KindExtraction         ErrorKind = "EXTRACTION"
	KindPersistence        ErrorKind = "PERSISTENCE"
	KindMetadataProjection ErrorKind = "METADATA_PROJECTION"
	KindUnclassified       ErrorKind = "UNCLASSIFIED"
)

// Sentinels usable with errors.Is; they match any *Error of the same kind.
var (
	ErrMalformedMessage   = &Error{Kind: KindMalformedMessage}
	ErrUnsupportedType    = &Error{Kind: KindUnsupportedType}
	ErrExtraction         = &Error{Kind: KindExtraction}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrMetadataProjection = &Error{Kind: KindMetadataProjection}
	ErrUnclassified       = &Error{Kind: KindUnclassified}
)

// Error is a classified pipeline failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Message returns the short user-facing text for the kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindMalformedMessage:
		return "Error while decoding the job message."
	case KindUnsupportedType:
		return "Error while Ingesting the Data: unsupported data type."
	default:
		return "Error while Ingesting the Data."
	}
}

// KindOf extracts the kind of err, defaulting to KindUnclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindUnclassified
}

func newError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Malformed wraps err as a malformed-message failure.
func Malformed(op string, err error) error { return newError(KindMalformedMessage, op, err) }

// Unsupported reports that no inspector exists for tag.
func Unsupported(tag string) error {
	return newError(KindUnsupportedType, "dispatch", fmt.Errorf("no inspector registered for data type %q", tag))
}

// Extraction wraps err as an extraction failure.
func Extraction(op string, err error) error { return newError(KindExtraction, op, err) }

// Persistence wraps err as a persistence failure.
func Persistence(op string, err error) error { return newError(KindPersistence, op, err) }

// Projection wraps err as a non-fatal projection failure.
func Projection(op string, err error) error { return newError(KindMetadataProjection, op, err) }

// Unclassified wraps err with no more specific kind.
func Unclassified(op string, err error) error { return newError(KindUnclassified, op, err) }
