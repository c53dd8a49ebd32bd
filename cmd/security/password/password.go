package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hash hashes a password with bcrypt and returns the encoded hash string.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	b, err := bcrypt.GenerateFromPassword([]byte(password), c.Params.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify checks whether password matches the given encoded hash.
// Returns (true, nil) for a match, (false, nil) for mismatch,
// and (false, ErrInvalidHash) for malformed/unsupported hashes.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// Validate enforces the configured policy on a plaintext password.
func (c Config) Validate(password string) error {
	n := len(password)
	if n < c.Policy.MinLength {
		return ErrPasswordTooShort
	}
	if n > c.Policy.MaxLength {
		return ErrPasswordTooLong
	}
	if c.Policy.RejectVeryWeak && isVeryWeak(password) {
		return ErrWeakPassword
	}
	return nil
}

// isVeryWeak rejects a minimal set of trivially guessable patterns.
// This is not a strength meter; it only blocks the worst offenders.
func isVeryWeak(password string) bool {
	p := strings.ToLower(strings.TrimSpace(password))

	switch p {
	case "password", "passwort", "qwerty", "letmein", "123456", "12345678", "123456789":
		return true
	}

	// Single repeated rune ("aaaaaaaa", "11111111").
	if p != "" {
		first := rune(p[0])
		same := true
		for _, r := range p {
			if r != first {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}

	return false
}
