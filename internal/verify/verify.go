// Package verify recomputes block digests and checks chain linkage.
//
// Verification trusts nothing stored in the blocks: every digest is
// recomputed from the canonical payload and compared against the sealed
// value, so any rewrite of transaction content, header fields or the
// linkage itself is surfaced. The scan stops at the first violation.
package verify

import (
	"errors"
	"fmt"

	"github.com/dtklabs/dtkchain/pkg/block"
	"github.com/dtklabs/dtkchain/pkg/digest"
)

// Verification errors, carried in Result.Err.
var (
	ErrInvalidGenesis = errors.New("invalid genesis block")
	ErrIndexMismatch  = errors.New("block index mismatch")
	ErrDigestMismatch = errors.New("block digest mismatch")
	ErrLinkageBroken  = errors.New("block linkage broken")
)

// Status is the terminal state of a verification scan.
type Status uint8

const (
	StatusValid Status = iota
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Result is the outcome of a verification scan. For StatusInvalid,
// Index is the position the scan stopped at and Err names the
// violation; linkage breaks are attributed to the block holding the
// bad back-pointer.
type Result struct {
	Status Status
	Index  uint64
	Err    error
}

// OK reports whether the scan finished without a violation.
func (r Result) OK() bool {
	return r.Status == StatusValid
}

func (r Result) String() string {
	if r.Status == StatusValid {
		return "valid"
	}
	return fmt.Sprintf("invalid at block %d: %v", r.Index, r.Err)
}

// Verifier scans a block sequence front to back.
type Verifier struct {
	hasher digest.Hasher

	// OnScan, when set, is called with each position as the scan
	// reaches it. Useful for progress reporting on long chains.
	OnScan func(index uint64)
}

// New creates a verifier recomputing digests with the given hasher. The
// hasher must be the scheme the chain was sealed with, otherwise every
// block reports a digest mismatch.
func New(hasher digest.Hasher) (*Verifier, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher is nil")
	}
	return &Verifier{hasher: hasher}, nil
}

// Verify scans blocks in order. Position 0 must hold a genesis-shaped
// block, every block must sit at the position its index names, every
// digest must recompute to the sealed value, and every block must link
// to its predecessor's digest. An empty sequence is valid; there is
// nothing to check.
func (v *Verifier) Verify(blocks []*block.Block) Result {
	for i, blk := range blocks {
		if v.OnScan != nil {
			v.OnScan(uint64(i))
		}

		if blk == nil {
			return invalid(uint64(i), fmt.Errorf("block at position %d is nil", i))
		}

		if i == 0 && (blk.Index != 0 || !blk.PrevDigest.IsZero()) {
			return invalid(0, fmt.Errorf("%w: index %d, prev digest %s", ErrInvalidGenesis, blk.Index, blk.PrevDigest))
		}
		if blk.Index != uint64(i) {
			return invalid(uint64(i), fmt.Errorf("%w: position %d holds index %d", ErrIndexMismatch, i, blk.Index))
		}

		if got := blk.ComputeDigest(v.hasher); got != blk.Digest {
			return invalid(uint64(i), fmt.Errorf("%w: block %d sealed %s, recomputed %s", ErrDigestMismatch, blk.Index, blk.Digest, got))
		}

		if i+1 < len(blocks) {
			next := blocks[i+1]
			if next != nil && next.PrevDigest != blk.Digest {
				return invalid(uint64(i+1), fmt.Errorf("%w: block %d prev %s, want %s", ErrLinkageBroken, next.Index, next.PrevDigest, blk.Digest))
			}
		}
	}
	return Result{Status: StatusValid}
}

func invalid(index uint64, err error) Result {
	return Result{Status: StatusInvalid, Index: index, Err: err}
}
