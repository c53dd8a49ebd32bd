package identity

import "chatline/cmd/security/password"

// HashPassword hashes a plaintext password using the configured policy.
func HashPassword(plain string, cfg password.Config) (string, error) {
	return cfg.Hash(plain)
}

// VerifyPassword checks plain against a stored hash.
func VerifyPassword(plain, hash string, cfg password.Config) (bool, error) {
	return cfg.Verify(hash, plain)
}

// DefaultPasswordConfig returns the baseline hashing/policy configuration.
func DefaultPasswordConfig() password.Config {
	return password.DefaultConfig()
}
