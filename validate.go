package authcore

import (
	"fmt"
	"strings"
)

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates every failed field so callers can surface
// all of them at once instead of fixing one per round trip.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(msgs, "; "))
}

// Is lets errors.Is(err, ErrValidation) match the aggregate.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

const (
	minPasswordLen  = 8
	maxIdentifier   = 254
	maxPasswordLen  = 1024
	maxTempTokenLen = 512
)

// ValidateCredentials checks the login input locally before any network
// exchange. It reports every failing field.
func ValidateCredentials(c Credentials) error {
	var errs ValidationErrors

	ident := strings.TrimSpace(c.Identifier)
	switch {
	case ident == "":
		errs = append(errs, FieldError{"identifier", "must not be empty"})
	case len(ident) > maxIdentifier:
		errs = append(errs, FieldError{"identifier", "too long"})
	}

	switch {
	case c.Password == "":
		errs = append(errs, FieldError{"password", "must not be empty"})
	case len(c.Password) < minPasswordLen:
		errs = append(errs, FieldError{"password", fmt.Sprintf("must be at least %d characters", minPasswordLen)})
	case len(c.Password) > maxPasswordLen:
		errs = append(errs, FieldError{"password", "too long"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateMFAVerification checks the MFA confirmation input locally.
// Code format itself (digits, weak patterns) is checked by the verifier;
// this only rejects structurally unusable requests.
func ValidateMFAVerification(v MFAVerification) error {
	var errs ValidationErrors

	if strings.TrimSpace(v.Token) == "" {
		errs = append(errs, FieldError{"token", "must not be empty"})
	}
	switch {
	case strings.TrimSpace(v.TempToken) == "":
		errs = append(errs, FieldError{"tempToken", "must not be empty"})
	case len(v.TempToken) > maxTempTokenLen:
		errs = append(errs, FieldError{"tempToken", "too long"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
