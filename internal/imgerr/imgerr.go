// Package imgerr classifies failures of the image core so callers can tell
// bad input apart from internal processing errors.
package imgerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindMedia means the video resource could not be retrieved or decoded.
	KindMedia Kind = "media_error"
	// KindDecode means an image payload could not be parsed.
	KindDecode Kind = "decode_error"
	// KindGeometry means a transform was geometrically invalid.
	KindGeometry Kind = "geometry_error"
	// KindEncode means a raster could not be serialized.
	KindEncode Kind = "encode_error"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Media(op string, err error) error    { return wrap(KindMedia, op, err) }
func Decode(op string, err error) error   { return wrap(KindDecode, op, err) }
func Geometry(op string, err error) error { return wrap(KindGeometry, op, err) }
func Encode(op string, err error) error   { return wrap(KindEncode, op, err) }

// Mediaf and friends build the cause from a format string.
func Mediaf(op, format string, args ...any) error {
	return wrap(KindMedia, op, fmt.Errorf(format, args...))
}

func Decodef(op, format string, args ...any) error {
	return wrap(KindDecode, op, fmt.Errorf(format, args...))
}

func Geometryf(op, format string, args ...any) error {
	return wrap(KindGeometry, op, fmt.Errorf(format, args...))
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification; re-wrapping a classified error only
	// adds noise to the message.
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsInputError reports whether err was caused by the caller's input rather
// than by the service itself.
func IsInputError(err error) bool {
	switch KindOf(err) {
	case KindDecode, KindGeometry:
		return true
	default:
		return false
	}
}
