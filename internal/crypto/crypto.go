// Package crypto implements the cryptographic primitives of the platform:
// AES-256-GCM envelope encryption for credentials at rest, SHA-256 hashing
// and constant-time comparison for API keys, and secure random token
// generation.
//
// A single Cipher instance holds the process-wide master key. It is
// constructed once at startup from the configured secret and passed
// explicitly to every component that needs it — there is no package-level
// key state.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/parabase-io/parabase/internal/apperr"
)

const (
	// ivSize is the GCM nonce length. 12 bytes is the GCM standard size.
	ivSize = 12

	// keySize is the AES-256 key length.
	keySize = 32
)

// Envelope is the result of an Encrypt call. All three fields are
// standard-base64 encoded and stored as separate columns so the ciphertext
// cannot be confused with a plaintext connection string.
type Envelope struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// Cipher performs AES-256-GCM envelope encryption under the master key.
type Cipher struct {
	aead cipher.AEAD
}

// DeriveMasterKey turns the configured secret into a 32-byte AES-256 key:
// a 64-character hex string is decoded, any other input of at least 32 bytes
// is truncated to its first 32 bytes, and anything shorter fails so the
// process refuses to start with a weak key.
func DeriveMasterKey(secret string) ([]byte, error) {
	if len(secret) == 2*keySize {
		if decoded, err := hex.DecodeString(secret); err == nil {
			return decoded, nil
		}
	}
	if len(secret) >= keySize {
		return []byte(secret[:keySize]), nil
	}
	return nil, fmt.Errorf("crypto: master key must be 64 hex chars or at least %d bytes, got %d bytes", keySize, len(secret))
}

// NewCipher creates a Cipher from a 32-byte master key.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("crypto: master key must be exactly %d bytes, got %d", keySize, len(masterKey))
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random 12-byte IV and returns the
// ciphertext, IV and authentication tag as separate base64 values.
func (c *Cipher) Encrypt(plaintext string) (Envelope, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	// Seal appends the 16-byte authentication tag to the ciphertext; split it
	// back out so tag tampering is detectable as a distinct stored column.
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()

	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt opens an envelope produced by Encrypt. Any tampering with the
// ciphertext, IV or tag fails authentication and returns a Crypto-kind
// error; callers must treat that as fatal for the value and never fall back.
func (c *Cipher) Decrypt(env Envelope) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.KindCrypto, "invalid ciphertext encoding", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", apperr.Wrap(apperr.KindCrypto, "invalid iv encoding", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return "", apperr.Wrap(apperr.KindCrypto, "invalid auth tag encoding", err)
	}
	if len(iv) != ivSize {
		return "", apperr.New(apperr.KindCrypto, "invalid iv length")
	}

	plaintext, err := c.aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindCrypto, "decryption failed", err)
	}
	return string(plaintext), nil
}

// HashKey returns the SHA-256 hex digest of an API key plaintext. Only the
// digest is ever persisted.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// SecureCompare reports whether two hash strings are equal without
// short-circuiting. Both inputs are re-hashed to equal-length digests first,
// so the comparison time is independent of where the strings differ and of
// their lengths.
func SecureCompare(a, b string) bool {
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(da[:], db[:]) == 1
}
