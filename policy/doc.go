// Package policy contains the pure input-policy predicates for account
// credentials: display name, email, date of birth, and password strength.
//
// Nothing in this package performs I/O or reads the system clock directly;
// the date-of-birth check takes the reference date as an argument so callers
// can inject time.
package policy
