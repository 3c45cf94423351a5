package types

import (
	"errors"
)

// Kind is the classification of a failure as seen by the presentation layer.
type Kind string

const (
	KindNone                Kind = ""
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindNotFound            Kind = "not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidOption       Kind = "invalid_option"
	KindCannotRemoveCreator Kind = "cannot_remove_creator"
	KindInvalidArgument     Kind = "invalid_argument"
)

var (
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidOption       = errors.New("invalid poll option")
	ErrCannotRemoveCreator = errors.New("the creator cannot be removed from a chat")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// KindOf maps err onto the error taxonomy. Errors that match none of the sentinels are treated as
// storage failures, so raw backend errors never reach callers unclassified.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidOption):
		return KindInvalidOption
	case errors.Is(err, ErrCannotRemoveCreator):
		return KindCannotRemoveCreator
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	}
	return KindStorageUnavailable
}

// Classify returns err unchanged if it already wraps one of the sentinels, otherwise it wraps it
// with ErrStorageUnavailable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == KindStorageUnavailable && !errors.Is(err, ErrStorageUnavailable) {
		return &classifiedError{kind: ErrStorageUnavailable, cause: err}
	}
	return err
}

type classifiedError struct {
	kind  error
	cause error
}

func (e *classifiedError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *classifiedError) Is(target error) bool {
	return target == e.kind
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}
