package query

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every ValidationError via errors.Is.
var ErrValidation = errors.New("query: validation failed")

// Constraint names a rule a search request can violate.
type Constraint string

const (
	ConstraintUnknownField     Constraint = "unknown_field"
	ConstraintConnectorCount   Constraint = "connector_count"
	ConstraintInvalidConnector Constraint = "invalid_connector"
	ConstraintLengthMismatch   Constraint = "length_mismatch"
	ConstraintEmptyChain       Constraint = "empty_chain"
	ConstraintPageSize         Constraint = "page_size"
	ConstraintPage             Constraint = "page"
	ConstraintUnknownKind      Constraint = "unknown_kind"
)

// ValidationError rejects a request before any shard is touched.
type ValidationError struct {
	Constraint Constraint
	Detail     string
}

func newValidationError(c Constraint, format string, args ...any) *ValidationError {
	return &ValidationError{Constraint: c, Detail: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid search (%s): %s", e.Constraint, e.Detail)
}

// Is makes errors.Is(err, ErrValidation) hold for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AsValidation extracts the ValidationError wrapped in err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
