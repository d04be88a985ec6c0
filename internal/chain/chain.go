// Package chain maintains the append-only sequence of sealed blocks.
//
// A chain starts empty, is initialized exactly once with a genesis block
// and grows only through Append. Blocks already in the chain are never
// replaced or reordered; tamper detection over the stored sequence lives
// in the verify package.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dtklabs/dtkchain/config"
	"github.com/dtklabs/dtkchain/internal/log"
	"github.com/dtklabs/dtkchain/pkg/block"
	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Chain errors.
var (
	ErrNotInitialized     = errors.New("chain has no genesis block")
	ErrAlreadyInitialized = errors.New("chain already initialized")
	ErrInvalidGenesis     = errors.New("invalid genesis block")
	ErrNotFound           = errors.New("block not found")
)

// Chain is the in-memory block sequence, optionally written through to a
// BlockStore so a restart resumes at the archived tip.
type Chain struct {
	mu     sync.RWMutex
	blocks []*block.Block
	hasher digest.Hasher
	store  *BlockStore
}

// New creates a chain sealing blocks with the given hasher. A nil store
// keeps the chain memory-only; with a store, any previously archived
// blocks are loaded and structurally checked before the chain is handed
// out. Resuming a tampered archive whose first block is not a genesis
// block fails with ErrInvalidGenesis.
func New(hasher digest.Hasher, store *BlockStore) (*Chain, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher is nil")
	}

	c := &Chain{
		hasher: hasher,
		store:  store,
	}

	if store != nil {
		blocks, err := store.LoadBlocks()
		if err != nil {
			return nil, fmt.Errorf("load archive: %w", err)
		}
		if len(blocks) > 0 {
			if err := checkLoaded(blocks); err != nil {
				return nil, err
			}
			c.blocks = blocks
		}
	}
	return c, nil
}

// checkLoaded validates the structure of an archived chain: genesis
// shape at position 0, positional indexes and unbroken linkage. Digest
// recomputation is left to the verify package.
func checkLoaded(blocks []*block.Block) error {
	first := blocks[0]
	if first.Index != 0 || !first.PrevDigest.IsZero() {
		return fmt.Errorf("%w: index %d, prev digest %s", ErrInvalidGenesis, first.Index, first.PrevDigest)
	}
	for i, blk := range blocks {
		if blk.Index != uint64(i) {
			return fmt.Errorf("archive block at position %d has index %d", i, blk.Index)
		}
		if i > 0 && blk.PrevDigest != blocks[i-1].Digest {
			return fmt.Errorf("archive linkage broken at block %d", i)
		}
	}
	return nil
}

// InitFromGenesis seals the genesis block at the genesis timestamp and
// makes it block 0. Fails with ErrAlreadyInitialized if the chain
// already has blocks, including blocks resumed from the archive.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	if gen == nil {
		return fmt.Errorf("genesis config is nil")
	}
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("validate genesis: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) != 0 {
		return fmt.Errorf("%w: height %d", ErrAlreadyInitialized, c.blocks[len(c.blocks)-1].Index)
	}

	blk := block.NewGenesis(gen.Timestamp)
	blk.Seal(c.hasher)

	if err := c.persist(blk); err != nil {
		return err
	}
	c.blocks = append(c.blocks, blk)
	return nil
}

// Append seals a block over txs and links it to the current tip. The
// transaction list is bounded by block.Capacity; an over-full list fails
// with block.ErrBlockFull and the chain is unchanged. An empty list is
// allowed. Archive errors also leave the in-memory chain unchanged.
func (c *Chain) Append(txs []*tx.Transaction, timestamp int64) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.blocks) == 0 {
		return nil, ErrNotInitialized
	}

	tip := c.blocks[len(c.blocks)-1]
	blk, err := block.New(tip.Index+1, tip.Digest, txs, timestamp)
	if err != nil {
		return nil, err
	}
	if err := blk.Validate(); err != nil {
		return nil, fmt.Errorf("validate block %d: %w", blk.Index, err)
	}
	blk.Seal(c.hasher)

	if err := c.persist(blk); err != nil {
		return nil, err
	}
	c.blocks = append(c.blocks, blk)

	log.Chain.Debug().
		Uint64("index", blk.Index).
		Int("transactions", len(blk.Transactions)).
		Str("digest", blk.Digest.String()[:16]+"...").
		Msg("Block appended")

	return blk, nil
}

// persist archives blk when a store is attached. The tip marker is
// written after the block so a crash between the writes resumes at the
// previous tip instead of a half-indexed block.
func (c *Chain) persist(blk *block.Block) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.PutBlock(blk); err != nil {
		return fmt.Errorf("archive block %d: %w", blk.Index, err)
	}
	if err := c.store.SetTip(blk.Digest); err != nil {
		return fmt.Errorf("archive tip: %w", err)
	}
	return nil
}

// Len returns the number of blocks, genesis included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Height returns the index of the tip block, 0 when the chain is empty.
// Use Len to distinguish an empty chain from a genesis-only chain.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return 0
	}
	return c.blocks[len(c.blocks)-1].Index
}

// Tip returns the newest block, nil when the chain is empty.
func (c *Chain) Tip() *block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return nil
	}
	return c.blocks[len(c.blocks)-1]
}

// TipDigest returns the digest of the newest block, the zero digest when
// the chain is empty.
func (c *Chain) TipDigest() types.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return types.Digest{}
	}
	return c.blocks[len(c.blocks)-1].Digest
}

// BlockByIndex returns the block at the given index.
func (c *Chain) BlockByIndex(index uint64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index >= uint64(len(c.blocks)) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, index)
	}
	return c.blocks[index], nil
}

// Blocks returns a snapshot of the block sequence in index order.
// Mutating the returned slice does not affect the chain.
func (c *Chain) Blocks() []*block.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}
