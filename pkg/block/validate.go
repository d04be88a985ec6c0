package block

import (
	"errors"
	"fmt"
)

// ErrNilTx reports a nil entry in a block's transaction list.
var ErrNilTx = errors.New("nil transaction in block")

// Validate checks block structure and the transactions it carries.
// Digest correctness and linkage are the verifier's concern.
func (b *Block) Validate() error {
	if len(b.Transactions) > Capacity {
		return fmt.Errorf("%w: %d txs, max %d", ErrBlockFull, len(b.Transactions), Capacity)
	}

	for i, t := range b.Transactions {
		if t == nil {
			return fmt.Errorf("transaction %d: %w", i, ErrNilTx)
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}

	return nil
}
