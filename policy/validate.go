package policy

import (
	"fmt"
	"regexp"
	"time"
)

// Field identifies which credential input failed validation. Callers map
// fields to user-facing messages; the engine never does.
type Field uint8

const (
	// FieldName is the account display name.
	FieldName Field = iota
	// FieldEmail is the account email address.
	FieldEmail
	// FieldPassword is the account password.
	FieldPassword
	// FieldDateOfBirth is the account holder's date of birth.
	FieldDateOfBirth
)

func (f Field) String() string {
	switch f {
	case FieldName:
		return "name"
	case FieldEmail:
		return "email"
	case FieldPassword:
		return "password"
	case FieldDateOfBirth:
		return "date_of_birth"
	default:
		return "unknown"
	}
}

// FieldError reports a policy violation for a single input field.
type FieldError struct {
	Field  Field
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

const (
	minNameLen     = 2
	maxNameLen     = 50
	maxEmailLen    = 254
	minPasswordLen = 8
	maxPasswordLen = 50
)

var (
	nameRe  = regexp.MustCompile(`^[A-Za-z'\-\s]+$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidName reports whether name is 2–50 characters of letters, apostrophes,
// hyphens, and whitespace.
func ValidName(name string) bool {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return false
	}
	return nameRe.MatchString(name)
}

// ValidEmail reports whether email matches a minimal local@domain.tld shape
// and is at most 254 bytes. Deliverability is not checked here.
func ValidEmail(email string) bool {
	if email == "" || len(email) > maxEmailLen {
		return false
	}
	return emailRe.MatchString(email)
}

// ValidDateOfBirth reports whether dob is strictly before the given reference
// date (truncated to day precision).
func ValidDateOfBirth(dob, now time.Time) bool {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return dob.Before(today)
}

// CheckPassword validates the password policy: 8–50 bytes with at least one
// lowercase letter, one uppercase letter, one digit, and one symbol. Returns
// a *FieldError describing the first violation, or nil.
func CheckPassword(secret string) error {
	if len(secret) < minPasswordLen {
		return &FieldError{Field: FieldPassword, Reason: "too short"}
	}
	if len(secret) > maxPasswordLen {
		return &FieldError{Field: FieldPassword, Reason: "too long"}
	}

	var lower, upper, digit, symbol bool
	for _, r := range secret {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case !lower:
		return &FieldError{Field: FieldPassword, Reason: "missing lowercase letter"}
	case !upper:
		return &FieldError{Field: FieldPassword, Reason: "missing uppercase letter"}
	case !digit:
		return &FieldError{Field: FieldPassword, Reason: "missing digit"}
	case !symbol:
		return &FieldError{Field: FieldPassword, Reason: "missing symbol"}
	}

	return nil
}

// CheckName is the error-returning form of [ValidName].
func CheckName(name string) error {
	if !ValidName(name) {
		return &FieldError{Field: FieldName, Reason: "must be 2-50 letters, apostrophes, hyphens or spaces"}
	}
	return nil
}

// CheckEmail is the error-returning form of [ValidEmail].
func CheckEmail(email string) error {
	if !ValidEmail(email) {
		return &FieldError{Field: FieldEmail, Reason: "must be a valid address of at most 254 bytes"}
	}
	return nil
}

// CheckDateOfBirth is the error-returning form of [ValidDateOfBirth].
func CheckDateOfBirth(dob, now time.Time) error {
	if !ValidDateOfBirth(dob, now) {
		return &FieldError{Field: FieldDateOfBirth, Reason: "must be in the past"}
	}
	return nil
}
