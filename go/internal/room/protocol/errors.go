package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed means the frame is not a JSON object of the envelope shape.
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType means the type field names no known message kind.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMissingField means a field the message kind requires is empty.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidField means a field is present but cannot be parsed.
	ErrInvalidField = errors.New("invalid field")
)

// DecodeError describes why a frame could not be decoded. Kind is one of
// the sentinel errors above, so callers can use errors.Is.
type DecodeError struct {
	Kind  error
	Type  string
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("decode %s: %v %q: %v", e.Type, e.Kind, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("decode %s: %v %q", e.Type, e.Kind, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("decode: %v: %v", e.Kind, e.Err)
	case e.Type != "":
		return fmt.Sprintf("decode: %v %q", e.Kind, e.Type)
	default:
		return fmt.Sprintf("decode: %v", e.Kind)
	}
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
