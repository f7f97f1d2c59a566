// Package envelope seals job argument payloads for transport.
//
// Payloads travel as "base64(iv):base64(ciphertext)" strings. The key is
// AES-256-GCM over sha256(secret) and is derived lazily, exactly once per
// Cipher; every Seal/Open call shares the same derivation.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

var (
	// ErrMalformedEnvelope means the input is not a well-formed
	// "base64(iv):base64(ciphertext)" string.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")

	// ErrDecryptFailed covers wrong key, wrong nonce size and tampered
	// ciphertext alike. No partial plaintext is ever returned.
	ErrDecryptFailed = errors.New("envelope: decryption failed")
)

// Cipher derives and holds the symmetric payload key.
//
// Safe for concurrent use. The zero value is not usable; construct with New.
type Cipher struct {
	secret  string
	entropy io.Reader

	once sync.Once
	aead cipher.AEAD
	err  error
}

// Option adjusts Cipher construction.
type Option func(*Cipher)

// WithEntropy overrides the nonce source. Tests use this to pin nonces;
// production code should leave the default (crypto/rand).
func WithEntropy(r io.Reader) Option {
	return func(c *Cipher) { c.entropy = r }
}

// New validates the secret and returns a Cipher. Key derivation is deferred
// to the first Seal/Open call.
func New(secret string, opts ...Option) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("envelope: secret is required")
	}
	c := &Cipher{secret: secret, entropy: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// key derives the AEAD on first use. Concurrent callers share the single
// in-flight derivation; the result (or its error) is cached for the life of
// the Cipher.
func (c *Cipher) key() (cipher.AEAD, error) {
	c.once.Do(func() {
		sum := sha256.Sum256([]byte(c.secret))
		block, err := aes.NewCipher(sum[:])
		if err != nil {
			c.err = fmt.Errorf("envelope: derive key: %w", err)
			return
		}
		c.aead, c.err = cipher.NewGCM(block)
	})
	return c.aead, c.err
}

// Seal encrypts plaintext under a fresh nonce and returns the envelope string.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	aead, err := c.key()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(c.entropy, nonce); err != nil {
		return "", fmt.Errorf("envelope: read nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(ct), nil
}

// Open decrypts an envelope string produced by Seal with the same secret.
func (c *Cipher) Open(env string) ([]byte, error) {
	aead, err := c.key()
	if err != nil {
		return nil, err
	}
	head, tail, found := strings.Cut(env, ":")
	if !found || head == "" || tail == "" {
		return nil, ErrMalformedEnvelope
	}
	nonce, err := base64.StdEncoding.DecodeString(head)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	ct, err := base64.StdEncoding.DecodeString(tail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrDecryptFailed
	}
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		// Tag verification failure: tampering, wrong key, corrupted data.
		// Deliberately not distinguished.
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}
