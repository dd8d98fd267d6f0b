package broker

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when an upload callback names an object
	// the store does not have. No registry row is written.
	ErrObjectNotFound = errors.New("object not found")

	// ErrObjectCheckFailed wraps object store failures. The registry is left
	// untouched because the object may still exist.
	ErrObjectCheckFailed = errors.New("object check failed")

	// ErrCredentialIssue wraps credential issuer failures.
	ErrCredentialIssue = errors.New("credential issue failed")

	// ErrCredentialExpired is returned when the issuer hands back a grant
	// with no remaining lifetime.
	ErrCredentialExpired = errors.New("issued credentials already expired")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
