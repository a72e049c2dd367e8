// Package auth implements admin console authentication: Argon2id password
// hashing, signed session tokens, and single-use invite redemption.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// argon2Time is the iteration count (time cost) for Argon2id.
	// OWASP minimum recommendation is 1; 2 provides a better margin.
	argon2Time = 2

	// argon2Memory is the memory cost in KiB (64 MiB).
	argon2Memory = 64 * 1024

	// argon2Threads is the parallelism factor.
	argon2Threads = 2

	// argon2KeyLen is the output hash length in bytes.
	argon2KeyLen = 32

	// argon2SaltLen is the random salt length in bytes.
	argon2SaltLen = 16
)

// HashPassword returns an Argon2id hash of the given plaintext password.
//
// Format: saltHex:hashHex
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating password salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifyPassword checks a plaintext password against a stored Argon2id hash.
// Returns false on an invalid hash format rather than an error, since an
// invalid hash means authentication must fail.
func VerifyPassword(password, stored string) bool {
	saltHex, hashHex, ok := splitHash(stored)
	if !ok {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	actual := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, uint32(len(expected)))
	return constantTimeEqual(actual, expected)
}

// splitHash splits a "saltHex:hashHex" string into its two components.
func splitHash(s string) (salt, hash string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// constantTimeEqual compares two byte slices in constant time.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
