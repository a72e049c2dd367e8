package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyType distinguishes the two API key tiers issued per project.
type KeyType string

const (
	// KeyTypePublishable keys are safe to embed in client applications.
	// They grant reads and presigned transfers only.
	KeyTypePublishable KeyType = "publishable"

	// KeyTypeSecret keys are server-side only. Mutating CRUD, object
	// deletion and storage listing require this tier.
	KeyTypeSecret KeyType = "secret"
)

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	return t == KeyTypePublishable || t == KeyTypeSecret
}

// Prefix returns the plaintext prefix for the key type: "pk" or "sk".
func (t KeyType) Prefix() string {
	if t == KeyTypeSecret {
		return "sk"
	}
	return "pk"
}

const (
	apiKeyRandomBytes      = 32
	inviteTokenRandomBytes = 16
)

// NewAPIKey generates a fresh API key plaintext of the form
// "pk_<base64url>" or "sk_<base64url>" with 32 bytes of randomness.
// The plaintext is returned to the caller exactly once; only its SHA-256
// hash and display prefix are stored.
func NewAPIKey(t KeyType) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("crypto: unknown key type %q", t)
	}
	random, err := randomToken(apiKeyRandomBytes)
	if err != nil {
		return "", err
	}
	return t.Prefix() + "_" + random, nil
}

// NewInviteToken generates an invite key of the form "inv_<base64url>" with
// 16 bytes of randomness.
func NewInviteToken() (string, error) {
	random, err := randomToken(inviteTokenRandomBytes)
	if err != nil {
		return "", err
	}
	return "inv_" + random, nil
}

// DisplayPrefix returns the first 8 characters of a key plaintext, used for
// identifying keys in dashboards without revealing them.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) < 8 {
		return plaintext
	}
	return plaintext[:8]
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
