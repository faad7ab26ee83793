package forge

import (
	"errors"
	"fmt"
)

// Error kinds.
//
// Errors caused by user input wrap one of these, so callers can tell them
// from transport errors (I/O, HTTP), which are returned as they are.
var (
	// a field value cannot be coerced to its declared shape.
	ErrValidation = errors.New("validation error")

	// the type of a definition is not registered, or types do not share one chain.
	ErrUnknownType = errors.New("unknown type")

	// a required field is absent after defaulting.
	ErrMissingField = errors.New("missing field")

	// the store rejected a submission.
	ErrRegistration = errors.New("registration failure")

	// an unsupported node shape or revision mismatch is found while cloning.
	ErrGraphClone = errors.New("graph clone error")

	// a resource cannot be materialized.
	ErrMaterialization = errors.New("materialization error")

	// the store has no resource for the id.
	ErrNotFound = errors.New("resource not found")

	// the store has no schema for the type.
	ErrNoSchema = errors.New("no schema for the type")
)

// RegistrationFailure is the error returned when the store rejects a resource.
//
// Message is the store's diagnostic, unmodified.
type RegistrationFailure struct {
	// id of the rejected resource, if it has any.
	ID      string
	Message string
}

func (rf *RegistrationFailure) Error() string {
	return fmt.Sprintf("Failed to register resource: %s", rf.Message)
}

func (rf *RegistrationFailure) Unwrap() error {
	return ErrRegistration
}
