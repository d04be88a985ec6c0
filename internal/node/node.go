// Package node wires storage, chain, ledger, mempool, token registry and
// explorer into a single node that can be embedded in any binary.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dtklabs/dtkchain/config"
	"github.com/dtklabs/dtkchain/internal/chain"
	"github.com/dtklabs/dtkchain/internal/explorer"
	"github.com/dtklabs/dtkchain/internal/ledger"
	"github.com/dtklabs/dtkchain/internal/log"
	"github.com/dtklabs/dtkchain/internal/mempool"
	"github.com/dtklabs/dtkchain/internal/storage"
	"github.com/dtklabs/dtkchain/internal/token"
	"github.com/dtklabs/dtkchain/internal/verify"
	"github.com/dtklabs/dtkchain/pkg/block"
	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

var (
	// ErrNothingPending is returned by Commit when no transactions are queued.
	ErrNothingPending = errors.New("no pending transactions")

	// ErrGenesisMismatch is returned when the archive on disk was sealed
	// under a different genesis than the one configured.
	ErrGenesisMismatch = errors.New("genesis mismatch")
)

// Node is a full DTK Chain node: a block archive, the token ledger derived
// from it, a pool of pending transactions and an explorer over the lot.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core.
	db       storage.DB
	hasher   digest.Hasher
	ch       *chain.Chain
	led      *ledger.Ledger
	pool     *mempool.Pool
	tokens   *token.Store
	exp      *explorer.Explorer
	verifier *verify.Verifier

	now func() int64
}

// New builds a node from cfg. A fresh data directory is initialized from
// the genesis file (the demo genesis is written if none exists); an
// existing block archive is resumed and the ledger rebuilt from it.
func New(cfg *config.Config) (*Node, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = filepath.Join(cfg.LogsDir(), "dtkchain.log")
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := log.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := config.LoadGenesis(cfg.GenesisFile())
	if errors.Is(err, os.ErrNotExist) {
		genesis = config.DemoGenesis()
		if err := genesis.Save(cfg.GenesisFile()); err != nil {
			return nil, fmt.Errorf("write demo genesis: %w", err)
		}
		logger.Info().Str("path", cfg.GenesisFile()).Msg("Demo genesis written")
	} else if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("token", genesis.Token.Symbol).
		Msg("Genesis loaded")

	// ── 3. Open storage ─────────────────────────────────────────────
	var db storage.DB
	switch cfg.Store {
	case config.StoreMemory:
		db = storage.NewMemory()
	case config.StoreBadger:
		db, err = storage.NewBadger(cfg.BlocksDir())
		if err != nil {
			return nil, fmt.Errorf("open block store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Store)
	}
	logger.Info().Str("backend", cfg.Store).Msg("Store opened")

	// ── 4. Digest function ──────────────────────────────────────────
	hasher, err := digest.ForName(cfg.Digest)
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── 5. Chain ────────────────────────────────────────────────────
	store := chain.NewBlockStore(db)
	ch, err := chain.New(hasher, store)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open chain: %w", err)
	}

	genDigest, err := genesis.Digest(hasher)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("digest genesis: %w", err)
	}

	if ch.Len() == 0 {
		if err := ch.InitFromGenesis(genesis); err != nil {
			db.Close()
			return nil, fmt.Errorf("init chain: %w", err)
		}
		if err := store.SetGenesisDigest(genDigest); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info().Str("chain_id", genesis.ChainID).Msg("Chain initialized from genesis")
	} else {
		stored, ok, err := store.GetGenesisDigest()
		if err != nil {
			db.Close()
			return nil, err
		}
		if ok && stored != genDigest {
			db.Close()
			return nil, fmt.Errorf("%w: archive at %s was sealed under a different genesis",
				ErrGenesisMismatch, cfg.BlocksDir())
		}
		if !ok {
			// Archive written before the digest was recorded; record it now.
			if err := store.SetGenesisDigest(genDigest); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.Info().
			Uint64("height", ch.Height()).
			Str("tip", ch.TipDigest().String()[:16]+"...").
			Msg("Chain resumed from archive")
	}

	// ── 6. Ledger ───────────────────────────────────────────────────
	led := ledger.New()
	for _, account := range sortedAccounts(genesis.Alloc) {
		if err := led.Mint(types.Account(account), genesis.Alloc[account]); err != nil {
			db.Close()
			return nil, fmt.Errorf("mint %s: %w", account, err)
		}
	}
	replayed, err := rebuildLedger(led, ch.Blocks())
	if err != nil {
		db.Close()
		return nil, err
	}
	if replayed > 0 {
		logger.Info().Int("transactions", replayed).Msg("Ledger rebuilt from archive")
	}

	// ── 7. Mempool ──────────────────────────────────────────────────
	pool, err := mempool.New(hasher, mempool.DefaultMaxSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create mempool: %w", err)
	}

	// ── 8. Token registry ───────────────────────────────────────────
	tokens := token.NewStore(db)
	if err := tokens.Put(&token.Metadata{
		Name:     genesis.Token.Name,
		Symbol:   genesis.Token.Symbol,
		Decimals: genesis.Token.Decimals,
		Supply:   led.TotalSupply(),
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("register token: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		hasher:  hasher,
		ch:      ch,
		led:     led,
		pool:    pool,
		tokens:  tokens,
		now:     func() int64 { return time.Now().Unix() },
	}

	// ── 9. Explorer ─────────────────────────────────────────────────
	exp, err := explorer.New(ch, led, func() int64 { return n.now() })
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create explorer: %w", err)
	}
	n.exp = exp

	// ── 10. Verifier ────────────────────────────────────────────────
	verifier, err := verify.New(hasher)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create verifier: %w", err)
	}
	verifier.OnScan = func(index uint64) {
		logger.Debug().Uint64("index", index).Msg("Scanning block")
	}
	n.verifier = verifier

	logger.Info().
		Uint64("height", ch.Height()).
		Str("digest", hasher.Name()).
		Msg("Node ready")

	return n, nil
}

// SetClock overrides the node's time source for transaction and block
// timestamps. Call it before submitting transactions; tests use a fixed
// clock so sealed digests are reproducible.
func (n *Node) SetClock(now func() int64) {
	if now != nil {
		n.now = now
	}
}

// ── Transactions ────────────────────────────────────────────────────

// Transfer submits a transfer of amount from sender to receiver.
func (n *Node) Transfer(sender, receiver types.Account, amount uint64) (types.Digest, error) {
	return n.submit(tx.NewTransfer(sender, receiver, amount, n.now()))
}

// Approve submits an approval allowing spender to move up to amount of
// owner's balance.
func (n *Node) Approve(owner, spender types.Account, amount uint64) (types.Digest, error) {
	return n.submit(tx.NewApprove(owner, spender, amount, n.now()))
}

// TransferFrom submits a delegated transfer of amount from owner to
// receiver, spending spender's allowance.
func (n *Node) TransferFrom(owner, spender, receiver types.Account, amount uint64) (types.Digest, error) {
	return n.submit(tx.NewTransferFrom(owner, spender, receiver, amount, n.now()))
}

// submit admits t to the pool, then applies it to the ledger. A transaction
// that passes pool admission but breaks a ledger rule is removed again, so
// the pool only ever holds transactions already reflected in balances.
func (n *Node) submit(t *tx.Transaction) (types.Digest, error) {
	d, err := n.pool.Add(t)
	if err != nil {
		return types.Digest{}, err
	}
	if err := n.led.Apply(t); err != nil {
		n.pool.Remove(d)
		return types.Digest{}, err
	}

	n.logger.Debug().
		Str("kind", t.Kind.String()).
		Str("digest", d.String()[:16]+"...").
		Msg("Transaction accepted")

	return d, nil
}

// Commit seals pending transactions into a new block, oldest first, up to
// block capacity. Transactions beyond capacity stay queued for the next
// commit. Balances are unchanged: they were updated at submission.
func (n *Node) Commit() (*block.Block, error) {
	txs := n.pool.SelectForBlock(block.Capacity)
	if len(txs) == 0 {
		return nil, ErrNothingPending
	}

	blk, err := n.ch.Append(txs, n.now())
	if err != nil {
		return nil, fmt.Errorf("append block: %w", err)
	}
	n.pool.RemoveConfirmed(blk.Transactions)

	n.logger.Info().
		Uint64("index", blk.Index).
		Int("transactions", len(blk.Transactions)).
		Str("digest", blk.Digest.String()[:16]+"...").
		Msg("Block committed")

	return blk, nil
}

// Verify recomputes every digest and link in the archived chain and
// reports the first violation found.
func (n *Node) Verify() verify.Result {
	return n.verifier.Verify(n.ch.Blocks())
}

// ── Reads ───────────────────────────────────────────────────────────

// Genesis returns the genesis configuration the node was built from.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// Height returns the index of the newest block.
func (n *Node) Height() uint64 {
	return n.ch.Height()
}

// BalanceOf returns account's current balance.
func (n *Node) BalanceOf(account types.Account) uint64 {
	return n.led.BalanceOf(account)
}

// AllowanceOf returns how much of owner's balance spender may still move.
func (n *Node) AllowanceOf(owner, spender types.Account) uint64 {
	return n.led.AllowanceOf(owner, spender)
}

// TotalSupply returns the sum of all minted balances.
func (n *Node) TotalSupply() uint64 {
	return n.led.TotalSupply()
}

// PendingCount returns the number of transactions waiting to be committed.
func (n *Node) PendingCount() int {
	return n.pool.Size()
}

// Token returns the registered metadata for the chain's token.
func (n *Node) Token() (*token.Metadata, error) {
	return n.tokens.Get(n.genesis.Token.Symbol)
}

// Stats returns summary statistics over the archived chain.
func (n *Node) Stats() explorer.Stats {
	return n.exp.Stats()
}

// LatestBlocks returns views of the newest count blocks in chain order.
func (n *Node) LatestBlocks(count int) []explorer.BlockView {
	return n.exp.LatestBlocks(count)
}

// BlockByIndex returns a view of the block at index.
func (n *Node) BlockByIndex(index uint64) (explorer.BlockView, error) {
	return n.exp.BlockByIndex(index)
}

// Blocks returns a snapshot of the full chain.
func (n *Node) Blocks() []*block.Block {
	return n.ch.Blocks()
}

// Balances returns every account's balance, sorted by account.
func (n *Node) Balances() []explorer.AccountBalance {
	return n.exp.Balances()
}

// Export writes a full chain snapshot to path as indented JSON.
func (n *Node) Export(path string) error {
	if err := n.exp.SaveFile(path); err != nil {
		return err
	}
	n.logger.Info().Str("path", path).Msg("Chain exported")
	return nil
}

// Close releases the node's resources. Blocks are durable as soon as
// Commit returns, so Close only has to release the database.
func (n *Node) Close() {
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close store")
		}
	}
	n.logger.Info().Msg("Goodbye!")
}
