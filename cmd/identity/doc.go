// Package identity owns the user model and its persistence boundary.
//
// Identity keys are opaque ULID strings minted at registration and never
// mutated afterwards; credentials and presence reference users only by this
// key. Three Store implementations exist: in-memory (dev/tests), MongoDB
// (primary), and PostgreSQL (alternate deployment target). Store selection
// happens in app wiring.
package identity
