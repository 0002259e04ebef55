package policy

import (
	"errors"
	"fmt"
)

// Violation is returned when a call matches a BLOCK rule that does not
// exempt the caller's role.
type Violation struct {
	Rule string
	Tool string
	Role string
}

func (e *Violation) Error() string {
	return fmt.Sprintf("action prohibited by policy rule: %s", e.Rule)
}

// IsViolation reports whether err is or wraps a *Violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// AsViolation extracts the *Violation from err, if any.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
