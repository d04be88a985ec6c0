// Package digest provides the pluggable fingerprint functions used to
// seal and link blocks.
package digest

import (
	"fmt"

	"github.com/dtklabs/dtkchain/pkg/types"
)

// Hasher computes a fixed-size digest of a byte sequence.
// Implementations must be pure and deterministic: identical input always
// yields an identical digest.
type Hasher interface {
	// Sum returns the digest of data.
	Sum(data []byte) types.Digest

	// Name identifies the hasher in configuration and logs.
	Name() string
}

// Hasher names accepted by ForName and the config digest field.
const (
	NameRolling = "rolling"
	NameBlake3  = "blake3"
)

// ForName returns the hasher registered under name.
func ForName(name string) (Hasher, error) {
	switch name {
	case NameRolling:
		return Rolling{}, nil
	case NameBlake3:
		return Blake3{}, nil
	default:
		return nil, fmt.Errorf("unknown digest %q", name)
	}
}
