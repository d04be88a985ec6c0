// Package block defines the capacity-bounded transaction batches linked
// into the chain.
package block

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Capacity is the maximum number of transactions a block may carry.
// Exceeding it fails block construction; transactions are never truncated.
const Capacity = 10

// ErrBlockFull reports a transaction list over Capacity.
var ErrBlockFull = errors.New("block transaction capacity exceeded")

// Block is an ordered batch of transactions plus linkage metadata and the
// block's own digest. A block is sealed once, then frozen: after append
// the chain is its only owner and nothing mutates it.
type Block struct {
	Index      uint64       `json:"index"`
	PrevDigest types.Digest `json:"prev_digest"`

	// Timestamp is the block creation time in unix seconds, supplied by
	// the caller's clock.
	Timestamp int64 `json:"timestamp"`

	Transactions []*tx.Transaction `json:"transactions"`

	// Digest seals the block. It covers the transaction content, not just
	// the header fields, so edits to a recorded transaction are detectable
	// by recomputation.
	Digest types.Digest `json:"digest"`
}

// New builds an unsealed block. It fails with ErrBlockFull when txs
// exceeds Capacity; the caller must start a new block instead.
func New(index uint64, prev types.Digest, txs []*tx.Transaction, timestamp int64) (*Block, error) {
	if len(txs) > Capacity {
		return nil, fmt.Errorf("%w: %d txs, max %d", ErrBlockFull, len(txs), Capacity)
	}
	return &Block{
		Index:        index,
		PrevDigest:   prev,
		Timestamp:    timestamp,
		Transactions: txs,
	}, nil
}

// NewGenesis builds the unsealed index-0 block: empty transaction set and
// the zero digest as its previous link.
func NewGenesis(timestamp int64) *Block {
	return &Block{
		Index:      0,
		PrevDigest: types.Digest{},
		Timestamp:  timestamp,
	}
}

// DigestBytes returns the canonical byte representation the block digest
// is computed over.
// Format: index(8) | prev_digest(32) | timestamp(8) | tx_count(4) | tx_bytes...
func (b *Block) DigestBytes() []byte {
	buf := make([]byte, 0, 52+len(b.Transactions)*64)

	buf = binary.LittleEndian.AppendUint64(buf, b.Index)
	buf = append(buf, b.PrevDigest[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Timestamp))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Transactions)))
	for _, t := range b.Transactions {
		buf = append(buf, t.Encode()...)
	}

	return buf
}

// ComputeDigest recomputes the block digest from its canonical bytes.
// It never reads the stored Digest field, so the verifier can use it to
// detect in-place tampering.
func (b *Block) ComputeDigest(h digest.Hasher) types.Digest {
	return h.Sum(b.DigestBytes())
}

// Seal computes and stores the block digest, returning it.
func (b *Block) Seal(h digest.Hasher) types.Digest {
	b.Digest = b.ComputeDigest(h)
	return b.Digest
}
