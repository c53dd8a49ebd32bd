package token

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretEnvKey is the env var name for the token signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "CHATLINE_JWT_SECRET"

	// DefaultTTL is the credential lifetime embedded at issuance.
	DefaultTTL = 24 * time.Hour
)

// identityClaims is the ordered list of claim names accepted for the embedded
// identity. Earlier codec versions issued tokens under different names;
// verification tries each in sequence and the first non-empty string wins.
// Keep this list append-only.
var identityClaims = []string{"userId", "id", "_id", "sub"}

// Codec issues and verifies signed, time-limited identity tokens.
//
// Verification is pure and stateless: validity is decided by signature and
// expiry alone. There is no server-side session record and no revocation
// before expiry. A Codec is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration

	// now is overridable for tests.
	now func() time.Time
}

// NewCodec constructs a Codec signing with HMAC-SHA256.
// A non-positive ttl falls back to DefaultTTL.
func NewCodec(secret []byte, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{
		secret: secret,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue produces a signed token embedding identity with an expiry ttl from now.
func (c *Codec) Issue(identity string) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", ErrSecretMissing
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", ErrNoIdentity
	}

	now := c.now()
	claims := jwt.MapClaims{
		"id":  identity,
		"iat": now.Unix(),
		"exp": now.Add(c.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks raw and returns the embedded identity.
//
// Failure contract (stable for errors.Is):
//   - ErrMalformed: raw is not a three-segment token. Checked before any
//     signature work so junk input fails fast.
//   - ErrSignatureInvalid: signature mismatch or unexpected signing method.
//   - ErrExpired: at or past the embedded expiry.
//   - ErrNoIdentity: valid token without a recognized identity claim.
func (c *Codec) Verify(raw string) (string, error) {
	if c == nil || len(c.secret) == 0 {
		return "", ErrSecretMissing
	}

	raw = strings.TrimSpace(raw)
	if !WellFormed(raw) {
		return "", ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", ErrMalformed
		default:
			// Signature mismatch, unexpected alg, unverifiable token.
			return "", ErrSignatureInvalid
		}
	}

	for _, name := range identityClaims {
		v, ok := claims[name]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", ErrNoIdentity
}

// WellFormed reports whether raw has the three dot-separated segment shape of
// a signed token. It proves nothing about validity; it only lets callers skip
// signature work for obvious junk.
func WellFormed(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// SecretFromEnv returns the configured signing secret bytes (trimmed),
// enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}
