package node

import (
	"fmt"
	"sort"

	"github.com/dtklabs/dtkchain/internal/ledger"
	"github.com/dtklabs/dtkchain/pkg/block"
)

// sortedAccounts returns the allocation accounts in lexical order so
// minting happens in a stable order regardless of map iteration.
func sortedAccounts(alloc map[string]uint64) []string {
	accounts := make([]string, 0, len(alloc))
	for account := range alloc {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

// rebuildLedger replays every archived transaction against led, skipping
// the genesis block. The archive was sealed from a valid ledger, so a
// replay failure means the archive and the genesis allocation disagree.
func rebuildLedger(led *ledger.Ledger, blocks []*block.Block) (int, error) {
	replayed := 0
	for _, blk := range blocks {
		if blk.Index == 0 {
			continue
		}
		for _, t := range blk.Transactions {
			if err := led.Apply(t); err != nil {
				return replayed, fmt.Errorf("replay block %d: %w", blk.Index, err)
			}
			replayed++
		}
	}
	return replayed, nil
}
