// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dtklabs/dtkchain/internal/log"
	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Pool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in pool")
	ErrPoolFull      = errors.New("pool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrNilTx         = errors.New("transaction is nil")
)

// DefaultMaxSize caps the pool when no explicit size is configured.
const DefaultMaxSize = 1000

// entry wraps a pending transaction with its content digest.
type entry struct {
	tx     *tx.Transaction
	digest types.Digest
}

// Pool holds validated transactions in arrival order until a block picks
// them up. Ledger effects happen at submission time elsewhere; the pool
// only records what still needs to be chained.
type Pool struct {
	mu       sync.RWMutex
	order    []*entry
	byDigest map[types.Digest]*entry
	hasher   digest.Hasher
	maxSize  int
}

// New creates a pool deduplicating by content digest under the given
// hasher. maxSize <= 0 falls back to DefaultMaxSize.
func New(hasher digest.Hasher, maxSize int) (*Pool, error) {
	if hasher == nil {
		return nil, fmt.Errorf("hasher is nil")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		byDigest: make(map[types.Digest]*entry),
		hasher:   hasher,
		maxSize:  maxSize,
	}, nil
}

// Add validates and appends a transaction to the pool. Returns the
// transaction's content digest. Rejects structural garbage, duplicates
// and additions past capacity; the pool never evicts.
func (p *Pool) Add(transaction *tx.Transaction) (types.Digest, error) {
	if transaction == nil {
		return types.Digest{}, ErrNilTx
	}
	if err := transaction.Validate(); err != nil {
		return types.Digest{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	d := transaction.Digest(p.hasher)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byDigest[d]; exists {
		return types.Digest{}, fmt.Errorf("%w: %s", ErrAlreadyExists, d)
	}
	if len(p.order) >= p.maxSize {
		return types.Digest{}, fmt.Errorf("%w: %d transactions", ErrPoolFull, len(p.order))
	}

	e := &entry{tx: transaction, digest: d}
	p.order = append(p.order, e)
	p.byDigest[d] = e

	log.Pool.Debug().
		Str("digest", d.String()[:16]+"...").
		Int("pooled", len(p.order)).
		Msg("Transaction admitted")

	return d, nil
}

// SelectForBlock returns up to limit transactions in arrival order. The
// selection is a read; transactions stay pooled until RemoveConfirmed.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limit <= 0 {
		return nil
	}
	if limit > len(p.order) {
		limit = len(p.order)
	}

	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = p.order[i].tx
	}
	return result
}

// RemoveConfirmed drops all transactions that were included in a block.
// Unknown transactions are ignored; arrival order of the rest holds.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	confirmed := make(map[types.Digest]struct{}, len(transactions))
	for _, t := range transactions {
		if t == nil {
			continue
		}
		confirmed[t.Digest(p.hasher)] = struct{}{}
	}
	if len(confirmed) == 0 {
		return
	}

	kept := p.order[:0]
	for _, e := range p.order {
		if _, hit := confirmed[e.digest]; hit {
			delete(p.byDigest, e.digest)
			continue
		}
		kept = append(kept, e)
	}
	p.order = kept
}

// Remove drops a single transaction by digest.
func (p *Pool) Remove(d types.Digest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byDigest[d]; !exists {
		return
	}
	delete(p.byDigest, d)
	kept := p.order[:0]
	for _, e := range p.order {
		if e.digest != d {
			kept = append(kept, e)
		}
	}
	p.order = kept
}

// Has checks if a transaction is pooled.
func (p *Pool) Has(d types.Digest) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.byDigest[d]
	return exists
}

// Get retrieves a pooled transaction, nil when absent.
func (p *Pool) Get(d types.Digest) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.byDigest[d]
	if !exists {
		return nil
	}
	return e.tx
}

// Size returns the number of pooled transactions.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Pending returns all pooled transactions in arrival order.
func (p *Pool) Pending() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*tx.Transaction, len(p.order))
	for i, e := range p.order {
		result[i] = e.tx
	}
	return result
}

// Digests returns the content digests of all pooled transactions in
// arrival order.
func (p *Pool) Digests() []types.Digest {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]types.Digest, len(p.order))
	for i, e := range p.order {
		result[i] = e.digest
	}
	return result
}
