package app

import (
	"errors"

	"chatline/cmd/security/token"
)

// minSecretBytes is the minimum HS256 signing secret length. Measured in
// bytes, not runes, because the key is used as raw bytes.
const minSecretBytes = 32

// ValidateSecurityConfig enforces the startup security policy.
//
// Credentials are stateless: a leaked or weak signing secret cannot be
// revoked, only waited out. Failing fast here beats discovering the gap in
// production.
func ValidateSecurityConfig() ([]byte, error) {
	secret, err := token.SecretFromEnv(minSecretBytes)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return nil, errors.New("security policy: " + token.SecretEnvKey + " is not set")
		case errors.Is(err, token.ErrSecretTooShort):
			return nil, errors.New("security policy: " + token.SecretEnvKey + " is too short (min 32 bytes)")
		default:
			return nil, err
		}
	}
	return secret, nil
}
