// Package sigcheck verifies inbound webhook requests.
//
// The scheduling service signs every callback with ed25519 over the exact
// byte concatenation of the timestamp header and the raw request body, with
// no separator. That concatenation is preserved here as-is for wire
// compatibility, even though the boundary between timestamp and body is not
// self-delimiting.
package sigcheck

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrMissingCredentials = errors.New("sigcheck: missing signature headers")
	ErrMalformedSignature = errors.New("sigcheck: malformed signature")
	ErrMalformedTimestamp = errors.New("sigcheck: malformed timestamp")
	ErrInvalidSignature   = errors.New("sigcheck: signature verification failed")
	ErrStaleRequest       = errors.New("sigcheck: request outside freshness window")
)

// DefaultMaxSkew is the accepted distance between the signed timestamp and
// the local clock, in either direction.
const DefaultMaxSkew = 300 * time.Second

// Verifier checks request signatures against a fixed trust anchor.
// It is stateless and safe for concurrent use.
type Verifier struct {
	pub     ed25519.PublicKey
	maxSkew time.Duration
	now     func() time.Time
}

// Option adjusts Verifier construction.
type Option func(*Verifier)

// WithClock overrides the freshness clock. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// WithMaxSkew overrides the freshness window.
func WithMaxSkew(d time.Duration) Option {
	return func(v *Verifier) { v.maxSkew = d }
}

// New parses the hex-encoded trust anchor. A key of the wrong size is
// rejected here so that verification can never panic later.
func New(publicKeyHex string, opts ...Option) (*Verifier, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("sigcheck: decode public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("sigcheck: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	v := &Verifier{pub: ed25519.PublicKey(raw), maxSkew: DefaultMaxSkew, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify authenticates one request. body is the raw request body, timestamp
// the decimal-seconds header value and signatureHex the hex-encoded
// signature header value.
//
// The signature check and the freshness check are independent; a request
// must pass both. Nothing is cached between calls.
func (v *Verifier) Verify(body []byte, timestamp, signatureHex string) error {
	if timestamp == "" || signatureHex == "" {
		return ErrMissingCredentials
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return ErrMalformedSignature
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	if !ed25519.Verify(v.pub, msg, sig) {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTimestamp, err)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return ErrStaleRequest
	}
	return nil
}
