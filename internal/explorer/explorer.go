// Package explorer provides read-only views over the chain and ledger:
// statistics, block queries, balance listings and JSON snapshots.
package explorer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dtklabs/dtkchain/internal/chain"
	"github.com/dtklabs/dtkchain/internal/ledger"
	"github.com/dtklabs/dtkchain/pkg/block"
)

// Stats summarizes the chain.
type Stats struct {
	TotalBlocks       int    `json:"total_blocks"`
	TotalTransactions int    `json:"total_transactions"`
	TipIndex          uint64 `json:"tip_index"`
	TipDigest         string `json:"tip_digest,omitempty"`
	AgeSeconds        int64  `json:"age_seconds"`
}

// TxView is the JSON shape of a transaction.
type TxView struct {
	Kind      string `json:"kind"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Spender   string `json:"spender,omitempty"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// BlockView is the JSON shape of a block.
type BlockView struct {
	Index            uint64   `json:"index"`
	PrevDigest       string   `json:"prev_digest"`
	Timestamp        int64    `json:"timestamp"`
	Digest           string   `json:"digest"`
	TransactionCount int      `json:"transaction_count"`
	Transactions     []TxView `json:"transactions"`
}

// AccountBalance pairs an account with its balance.
type AccountBalance struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// Snapshot is the full JSON export of a chain.
type Snapshot struct {
	Blocks   []BlockView      `json:"blocks"`
	Stats    Stats            `json:"stats"`
	Balances []AccountBalance `json:"balances"`
}

// Explorer answers read-only queries. It holds no state of its own;
// every call reads the live chain and ledger.
type Explorer struct {
	chain  *chain.Chain
	ledger *ledger.Ledger
	now    func() int64
}

// New creates an explorer over the given chain and ledger. A nil clock
// falls back to wall time; the clock only feeds the age statistic.
func New(ch *chain.Chain, led *ledger.Ledger, now func() int64) (*Explorer, error) {
	if ch == nil {
		return nil, fmt.Errorf("chain is nil")
	}
	if led == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Explorer{chain: ch, ledger: led, now: now}, nil
}

// Stats returns chain statistics. An empty chain reports zeros.
func (e *Explorer) Stats() Stats {
	blocks := e.chain.Blocks()
	if len(blocks) == 0 {
		return Stats{}
	}

	total := 0
	for _, blk := range blocks {
		total += len(blk.Transactions)
	}
	tip := blocks[len(blocks)-1]

	return Stats{
		TotalBlocks:       len(blocks),
		TotalTransactions: total,
		TipIndex:          tip.Index,
		TipDigest:         tip.Digest.String(),
		AgeSeconds:        e.now() - tip.Timestamp,
	}
}

// LatestBlocks returns up to count newest blocks in chain order.
func (e *Explorer) LatestBlocks(count int) []BlockView {
	if count <= 0 {
		return nil
	}

	blocks := e.chain.Blocks()
	if count > len(blocks) {
		count = len(blocks)
	}

	views := make([]BlockView, 0, count)
	for _, blk := range blocks[len(blocks)-count:] {
		views = append(views, toBlockView(blk))
	}
	return views
}

// BlockByIndex returns the block at the given index.
func (e *Explorer) BlockByIndex(index uint64) (BlockView, error) {
	blk, err := e.chain.BlockByIndex(index)
	if err != nil {
		return BlockView{}, err
	}
	return toBlockView(blk), nil
}

// Balances returns every account balance sorted by account name.
func (e *Explorer) Balances() []AccountBalance {
	accounts := e.ledger.Accounts()
	balances := make([]AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		balances = append(balances, AccountBalance{
			Account: string(account),
			Balance: e.ledger.BalanceOf(account),
		})
	}
	return balances
}

// Snapshot assembles the full chain export: every block, the statistics
// and the balance sheet.
func (e *Explorer) Snapshot() Snapshot {
	blocks := e.chain.Blocks()
	views := make([]BlockView, 0, len(blocks))
	for _, blk := range blocks {
		views = append(views, toBlockView(blk))
	}
	return Snapshot{
		Blocks:   views,
		Stats:    e.Stats(),
		Balances: e.Balances(),
	}
}

// ExportJSON writes the full chain snapshot to w as indented JSON.
func (e *Explorer) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e.Snapshot()); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// SaveFile writes the full chain snapshot to a JSON file.
func (e *Explorer) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if err := e.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

func toBlockView(blk *block.Block) BlockView {
	txs := make([]TxView, 0, len(blk.Transactions))
	for _, t := range blk.Transactions {
		txs = append(txs, TxView{
			Kind:      t.Kind.String(),
			Sender:    string(t.Sender),
			Receiver:  string(t.Receiver),
			Spender:   string(t.Spender),
			Amount:    t.Amount,
			Timestamp: t.Timestamp,
		})
	}
	return BlockView{
		Index:            blk.Index,
		PrevDigest:       blk.PrevDigest.String(),
		Timestamp:        blk.Timestamp,
		Digest:           blk.Digest.String(),
		TransactionCount: len(txs),
		Transactions:     txs,
	}
}
