package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
)

const codeDigits = 6

var (
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
	codeSpace    = big.NewInt(1_000_000)
)

// ValidatePhone reports whether phone is a 10 digit number starting with 6-9.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidCodeFormat reports whether code is exactly six digits.
func ValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}

// GenerateCode returns a uniformly random zero-padded 6 digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// HashCode returns the hex encoded SHA-256 of code.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// hashesEqual compares two hex digests in constant time.
func hashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// maskPhone keeps the first and last two digits for log lines.
func maskPhone(phone string) string {
	if len(phone) < 5 {
		return "***"
	}
	masked := []byte(phone)
	for i := 2; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
