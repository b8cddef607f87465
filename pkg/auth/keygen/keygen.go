// Package keygen derives per-user secret keys from passwords.
//
// The same derivation runs on clients; the server only needs it for
// command-line enrolment, where it stands in for a client. Passwords are
// normalized before hashing so visually identical inputs from different
// platforms derive the same key.
package keygen

import (
	"crypto/sha256"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

// KeySize is the derived key length in bytes.
const KeySize = 32

// iterations is the PBKDF2 work factor. Changing it invalidates every
// stored verifier, so it is fixed.
const iterations = 650_000

// NormalizePassword trims surrounding whitespace and applies Unicode NFKD,
// returning the bytes fed to the key derivation.
func NormalizePassword(password string) []byte {
	return []byte(norm.NFKD.String(strings.TrimSpace(password)))
}

// DeriveKey derives a 32-byte key from a password and salt using
// PBKDF2-HMAC-SHA256.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key(NormalizePassword(password), salt, iterations, KeySize, sha256.New)
}
