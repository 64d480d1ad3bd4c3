package login

import (
	"fmt"
	"unicode/utf8"
)

// PasswordPolicy defines the requirements a new password must meet
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// DefaultPasswordPolicy accepts 6 to 72 characters. bcrypt ignores input
// past 72 bytes.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: 6, MaxLength: 72}
}

// Check returns an error wrapping ErrWeakPassword when password does not
// satisfy the policy.
func (p PasswordPolicy) Check(password string) error {
	if utf8.RuneCountInString(password) < p.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters long", ErrWeakPassword, p.MinLength)
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		return fmt.Errorf("%w: password must be at most %d bytes long", ErrWeakPassword, p.MaxLength)
	}
	return nil
}
