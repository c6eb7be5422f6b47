package service

import (
	"errors"
	"fmt"

	"pos-service/internal/auth"
	"pos-service/internal/store"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrHasDependents     = errors.New("resource still has dependents")
)

// LoginError is a sign-in rejection whose message is shown to the user as is
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps store and identity errors onto the service taxonomy
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, auth.ErrIdentityNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrConflict), errors.Is(err, auth.ErrEmailTaken):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, store.ErrInsufficientStock):
		return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
	case errors.Is(err, auth.ErrWeakPassword):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return err
}
