// Package types defines core primitive types for the dtkchain ledger.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DigestSize is the length of a digest in bytes.
const DigestSize = 32

// Digest represents a 256-bit fingerprint of a byte sequence.
//
// The zero Digest doubles as the genesis sentinel: block 0 carries it as
// its previous-digest, and no sealed block ever stores a zero digest of
// its own.
type Digest [DigestSize]byte

// IsZero returns true if the digest is all zeros.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the hex-encoded digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes returns a copy of the digest as a byte slice.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	copy(b, d[:])
	return b
}

// MarshalJSON encodes the digest as a hex string.
func (d Digest) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a hex string into a digest.
func (d *Digest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Digest{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(decoded) != DigestSize {
		return fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(decoded))
	}
	copy(d[:], decoded)
	return nil
}

// HexToDigest converts a hex string to a Digest.
// Returns an error if the string is not exactly 64 hex characters.
func HexToDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != DigestSize {
		return Digest{}, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(b))
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}
