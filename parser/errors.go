package parser

import "fmt"

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	// ErrMalformed covers syntax damage the recovery scan could not repair.
	ErrMalformed ErrorKind = iota
	// ErrUnsupportedVersion rejects headers outside the 1.x / 2.x families.
	ErrUnsupportedVersion
	// ErrTrailerNotFound means no trailer with a document root was located.
	ErrTrailerNotFound
	// ErrXrefCorrupt means the cross-reference chain could not be resolved.
	ErrXrefCorrupt
)

func (k ErrorKind) String() string {
	switch k {
	case ErrMalformed:
		return "malformed"
	case ErrUnsupportedVersion:
		return "unsupported version"
	case ErrTrailerNotFound:
		return "trailer not found"
	case ErrXrefCorrupt:
		return "xref corrupt"
	}
	return "unknown"
}

// ParseError reports a failure to load a document, with the byte offset
// where parsing stopped when one is known.
type ParseError struct {
	Kind   ErrorKind
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("parse: %s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("parse: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrf(kind ErrorKind, offset int64, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Offset: offset, Err: fmt.Errorf(format, args...)}
}
