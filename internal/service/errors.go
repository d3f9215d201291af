package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/grouptrip/internal/lifecycle"
	"github.com/iliyamo/grouptrip/internal/model"
	"github.com/iliyamo/grouptrip/internal/repository"
)

// Error kinds surfaced by GroupService.  Callers match them with
// errors.Is; the transport maps each to a status code.
var (
	ErrValidation   = errors.New("validation error")
	ErrAuth         = errors.New("authentication required")
	ErrForbidden    = fmt.Errorf("%w: staff capability required", ErrAuth)
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")

	// ErrBookingNotRecorded accompanies a group that was saved while
	// its booking write failed.  The membership stands; the booking can
	// be recorded again with CreateBooking.
	ErrBookingNotRecorded = errors.New("booking not recorded")
)

// kindError tags err with one of the kinds above without changing its
// message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }

func withKind(kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// invalidf builds a validation error.
func invalidf(format string, args ...any) error {
	return withKind(ErrValidation, fmt.Errorf(format, args...))
}

// translate maps lifecycle and repository errors onto service kinds.
// Anything unrecognised (store outages, encoding failures) passes
// through untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lifecycle.ErrInvalid):
		return withKind(ErrValidation, err)
	case errors.Is(err, lifecycle.ErrAlreadyMember):
		return withKind(ErrConflict, err)
	case errors.Is(err, lifecycle.ErrGroupClosed):
		return withKind(ErrInvalidState, err)
	case errors.Is(err, repository.ErrGroupNotFound), errors.Is(err, repository.ErrBookingNotFound):
		return withKind(ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return withKind(ErrConflict, err)
	}
	return err
}

// requireActor rejects anonymous callers.
func requireActor(actor model.Actor) error {
	if !actor.Authenticated() {
		return ErrAuth
	}
	return nil
}

// requireStaff rejects callers without the staff capability.
func requireStaff(actor model.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.Staff {
		return ErrForbidden
	}
	return nil
}
