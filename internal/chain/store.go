package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/dtklabs/dtkchain/internal/storage"
	"github.com/dtklabs/dtkchain/pkg/block"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Key prefixes for the block archive.
var (
	prefixBlock = []byte("b/") // b/<digest>      -> block (CBOR)
	prefixIndex = []byte("h/") // h/<index, 8 BE> -> digest
	keyTip      = []byte("s/tip")
	keyGenesis  = []byte("s/genesis")
)

// Deterministic CBOR so the archived bytes for a block are reproducible
// across runs and platforms.
var (
	cborEnc, _ = cbor.EncOptions{Sort: cbor.SortCoreDeterministic}.EncMode()
	cborDec, _ = cbor.DecOptions{}.DecMode()
)

func blockKey(d types.Digest) []byte {
	return append(prefixBlock, d.Bytes()...)
}

func indexKey(index uint64) []byte {
	key := make([]byte, len(prefixIndex)+8)
	copy(key, prefixIndex)
	binary.BigEndian.PutUint64(key[len(prefixIndex):], index)
	return key
}

// BlockStore archives sealed blocks in a storage backend. Blocks are
// stored by digest with a secondary index by block index, plus a tip
// marker naming the newest block.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore wraps db as a block archive.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock archives a sealed block and indexes it by its index. The tip
// marker is updated separately via SetTip, after the block is durable.
func (bs *BlockStore) PutBlock(blk *block.Block) error {
	data, err := cborEnc.Marshal(blk)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", blk.Index, err)
	}
	if err := bs.db.Put(blockKey(blk.Digest), data); err != nil {
		return fmt.Errorf("put block %d: %w", blk.Index, err)
	}
	if err := bs.db.Put(indexKey(blk.Index), blk.Digest.Bytes()); err != nil {
		return fmt.Errorf("put block index %d: %w", blk.Index, err)
	}
	return nil
}

// GetBlock returns the archived block with the given digest.
func (bs *BlockStore) GetBlock(d types.Digest) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(d))
	if err != nil {
		return nil, fmt.Errorf("get block %s: %w", d, err)
	}
	var blk block.Block
	if err := cborDec.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("unmarshal block %s: %w", d, err)
	}
	return &blk, nil
}

// GetBlockByIndex resolves an index through the secondary index and
// returns the block stored under it.
func (bs *BlockStore) GetBlockByIndex(index uint64) (*block.Block, error) {
	raw, err := bs.db.Get(indexKey(index))
	if err != nil {
		return nil, fmt.Errorf("get block index %d: %w", index, err)
	}
	if len(raw) != types.DigestSize {
		return nil, fmt.Errorf("corrupt block index %d: %d bytes", index, len(raw))
	}
	var d types.Digest
	copy(d[:], raw)
	return bs.GetBlock(d)
}

// SetTip records d as the digest of the newest archived block.
func (bs *BlockStore) SetTip(d types.Digest) error {
	if err := bs.db.Put(keyTip, d.Bytes()); err != nil {
		return fmt.Errorf("put tip: %w", err)
	}
	return nil
}

// GetTip returns the digest of the newest archived block. The second
// return is false when the archive has never recorded a tip.
func (bs *BlockStore) GetTip() (types.Digest, bool, error) {
	raw, err := bs.db.Get(keyTip)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.Digest{}, false, nil
	}
	if err != nil {
		return types.Digest{}, false, fmt.Errorf("get tip: %w", err)
	}
	if len(raw) != types.DigestSize {
		return types.Digest{}, false, fmt.Errorf("corrupt tip: %d bytes", len(raw))
	}
	var d types.Digest
	copy(d[:], raw)
	return d, true, nil
}

// SetGenesisDigest records the digest of the genesis configuration the
// archive was sealed under.
func (bs *BlockStore) SetGenesisDigest(d types.Digest) error {
	if err := bs.db.Put(keyGenesis, d.Bytes()); err != nil {
		return fmt.Errorf("put genesis digest: %w", err)
	}
	return nil
}

// GetGenesisDigest returns the recorded genesis configuration digest. The
// second return is false when the archive has never recorded one.
func (bs *BlockStore) GetGenesisDigest() (types.Digest, bool, error) {
	raw, err := bs.db.Get(keyGenesis)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return types.Digest{}, false, nil
	}
	if err != nil {
		return types.Digest{}, false, fmt.Errorf("get genesis digest: %w", err)
	}
	if len(raw) != types.DigestSize {
		return types.Digest{}, false, fmt.Errorf("corrupt genesis digest: %d bytes", len(raw))
	}
	var d types.Digest
	copy(d[:], raw)
	return d, true, nil
}

// LoadBlocks reads the archived chain back in index order, stopping at
// the recorded tip. Blocks indexed past the tip are a torn write from a
// crash between PutBlock and SetTip; they are dropped so the chain
// resumes from the last durable tip.
func (bs *BlockStore) LoadBlocks() ([]*block.Block, error) {
	tip, ok, err := bs.GetTip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var blocks []*block.Block
	for i := uint64(0); ; i++ {
		blk, err := bs.GetBlockByIndex(i)
		if errors.Is(err, storage.ErrKeyNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
		if blk.Digest == tip {
			return blocks, nil
		}
	}
	return nil, fmt.Errorf("corrupt archive: tip %s not reachable from index", tip)
}
