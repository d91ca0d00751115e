package lifecycle

import (
	"errors"
	"fmt"

	"github.com/callscope/callscope/pkg/models"
)

var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create a duplicate entity
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnidentified is returned when an inbound payload cannot be
	// attributed to any tenant
	ErrUnidentified = errors.New("payload could not be attributed to a tenant")
)

// TransitionError reports a (from, to, trigger) triple outside the
// transition table. The call record is unchanged when this is returned.
type TransitionError struct {
	From    models.AttendanceState
	To      models.AttendanceState
	Trigger models.Trigger
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "unset"
	}
	return fmt.Sprintf("invalid transition %q -> %q via trigger %q", from, string(e.To), string(e.Trigger))
}

// IsTransitionError checks if an error is a transition error
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// ValidationError wraps field-specific validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
