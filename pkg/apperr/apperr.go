package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrConflict        = errors.New("conflict")
)

// ErrInvalidTransition is returned when a moderation action targets a report
// in a state that does not allow it. It matches ErrInvalidArgument.
var ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrInvalidArgument)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func InvalidArgument(format string, args ...any) error {
	return wrap(ErrInvalidArgument, format, args...)
}

func Unauthorized(format string, args ...any) error {
	return wrap(ErrUnauthorized, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
