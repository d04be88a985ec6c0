package digest

import (
	"encoding/binary"

	"github.com/dtklabs/dtkchain/pkg/types"
)

// Rolling is the default digest: a multiplicative rolling accumulator
// (seed 5381, state = state*33 + byte) whose 64-bit state is expanded to
// 32 bytes with a splitmix64 finalizer.
//
// Rolling is NOT collision-resistant. Two inputs with the same digest are
// trivial to craft, so it establishes linkage only, never tamper-evidence.
// Callers that need a tamper-evident chain must use Blake3.
type Rolling struct{}

var _ Hasher = Rolling{}

// Sum returns the rolling digest of data.
func (Rolling) Sum(data []byte) types.Digest {
	state := rollingSum(data)

	var d types.Digest
	for i := 0; i < types.DigestSize/8; i++ {
		state += 0x9e3779b97f4a7c15
		binary.LittleEndian.PutUint64(d[i*8:], mix64(state))
	}
	return d
}

// Name implements Hasher.
func (Rolling) Name() string { return NameRolling }

// rollingSum is the 64-bit accumulator core: seed 5381, multiply by 33,
// add each byte, wrapping on overflow.
func rollingSum(data []byte) uint64 {
	state := uint64(5381)
	for _, c := range data {
		state = state<<5 + state + uint64(c)
	}
	return state
}

// mix64 is the splitmix64 output permutation. It spreads the accumulator
// state across all 64 bits so the expanded digest is not dominated by the
// low bytes of the input.
func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}
