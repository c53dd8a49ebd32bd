// Package password provides password hashing and policy validation.
//
// bcrypt is used for compatibility with hashes minted by earlier releases of
// this system; stored hashes verify unchanged across cost changes.
package password
