package node

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dtklabs/dtkchain/config"
	"github.com/dtklabs/dtkchain/internal/chain"
	"github.com/dtklabs/dtkchain/internal/explorer"
	"github.com/dtklabs/dtkchain/internal/ledger"
	"github.com/dtklabs/dtkchain/internal/mempool"
	"github.com/dtklabs/dtkchain/internal/verify"
	"github.com/dtklabs/dtkchain/pkg/block"
)

const testTime = int64(1700000000)

// testConfig builds a memory-backed config rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Store = config.StoreMemory
	cfg.Log.Level = "error"
	if err := config.EnsureDataDirs(cfg); err != nil {
		t.Fatalf("EnsureDataDirs: %v", err)
	}
	return cfg
}

// testNode builds a node on a fresh memory store with a fixed clock.
func testNode(t *testing.T) *Node {
	t.Helper()

	n, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(n.Close)
	n.SetClock(func() int64 { return testTime })
	return n
}

func TestNew_FreshDataDir(t *testing.T) {
	cfg := testConfig(t)
	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if _, err := os.Stat(cfg.GenesisFile()); err != nil {
		t.Errorf("demo genesis not written: %v", err)
	}
	if got := n.Genesis().ChainID; got != "dtk-demo-1" {
		t.Errorf("chain id = %q, want dtk-demo-1", got)
	}
	if n.Height() != 0 {
		t.Errorf("fresh chain height = %d, want 0", n.Height())
	}
	if got := len(n.Blocks()); got != 1 {
		t.Errorf("fresh chain has %d blocks, want genesis only", got)
	}
	if got := n.BalanceOf("0x0"); got != 1_000_000 {
		t.Errorf("genesis balance = %d, want 1000000", got)
	}
	if got := n.TotalSupply(); got != 1_000_000 {
		t.Errorf("total supply = %d, want 1000000", got)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNew_BadStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = "floppy"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unknown store backend")
	}
}

func TestTransfer(t *testing.T) {
	n := testNode(t)

	d, err := n.Transfer("0x0", "Alice", 500)
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if d.IsZero() {
		t.Error("transfer digest is zero")
	}
	if got := n.BalanceOf("Alice"); got != 500 {
		t.Errorf("Alice balance = %d, want 500", got)
	}
	if got := n.BalanceOf("0x0"); got != 999_500 {
		t.Errorf("0x0 balance = %d, want 999500", got)
	}
	if n.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", n.PendingCount())
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	n := testNode(t)

	_, err := n.Transfer("Alice", "Bob", 5)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if n.PendingCount() != 0 {
		t.Error("rejected transfer left in the pool")
	}
}

func TestTransfer_Invalid(t *testing.T) {
	n := testNode(t)

	_, err := n.Transfer("", "Bob", 5)
	if !errors.Is(err, mempool.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestTransfer_Duplicate(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	_, err := n.Transfer("0x0", "Alice", 500)
	if !errors.Is(err, mempool.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	// The duplicate must not touch balances a second time.
	if got := n.BalanceOf("Alice"); got != 500 {
		t.Errorf("Alice balance = %d, want 500", got)
	}
}

func TestApproveAndTransferFrom(t *testing.T) {
	n := testNode(t)

	if _, err := n.Approve("0x0", "Carol", 300); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := n.TransferFrom("0x0", "Carol", "Dave", 200); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	if got := n.AllowanceOf("0x0", "Carol"); got != 100 {
		t.Errorf("allowance = %d, want 100", got)
	}
	if got := n.BalanceOf("Dave"); got != 200 {
		t.Errorf("Dave balance = %d, want 200", got)
	}
	if n.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", n.PendingCount())
	}
}

func TestTransferFrom_ExceedsAllowance(t *testing.T) {
	n := testNode(t)

	if _, err := n.Approve("0x0", "Carol", 100); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	_, err := n.TransferFrom("0x0", "Carol", "Dave", 200)
	if !errors.Is(err, ledger.ErrInsufficientAllowance) {
		t.Fatalf("err = %v, want ErrInsufficientAllowance", err)
	}
	if n.PendingCount() != 1 {
		t.Error("rejected transferFrom left in the pool")
	}
}

func TestCommit(t *testing.T) {
	n := testNode(t)

	for i := uint64(1); i <= 3; i++ {
		if _, err := n.Transfer("0x0", "Alice", i); err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
	}

	blk, err := n.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if blk.Index != 1 {
		t.Errorf("block index = %d, want 1", blk.Index)
	}
	if len(blk.Transactions) != 3 {
		t.Errorf("block has %d transactions, want 3", len(blk.Transactions))
	}
	if n.PendingCount() != 0 {
		t.Errorf("pending = %d after commit, want 0", n.PendingCount())
	}
	if n.Height() != 1 {
		t.Errorf("height = %d, want 1", n.Height())
	}
}

func TestCommit_NothingPending(t *testing.T) {
	n := testNode(t)

	_, err := n.Commit()
	if !errors.Is(err, ErrNothingPending) {
		t.Fatalf("err = %v, want ErrNothingPending", err)
	}
}

func TestCommit_LeavesRemainder(t *testing.T) {
	n := testNode(t)

	for i := uint64(1); i <= uint64(block.Capacity)+2; i++ {
		if _, err := n.Transfer("0x0", "Alice", i); err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
	}

	blk, err := n.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(blk.Transactions) != block.Capacity {
		t.Errorf("block has %d transactions, want %d", len(blk.Transactions), block.Capacity)
	}
	if n.PendingCount() != 2 {
		t.Errorf("pending = %d after commit, want 2", n.PendingCount())
	}

	blk, err = n.Commit()
	if err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if len(blk.Transactions) != 2 {
		t.Errorf("second block has %d transactions, want 2", len(blk.Transactions))
	}
	if n.Height() != 2 {
		t.Errorf("height = %d, want 2", n.Height())
	}
}

func TestVerify_Valid(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	res := n.Verify()
	if !res.OK() {
		t.Errorf("Verify = %v, want valid", res)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	n.Blocks()[1].Transactions[0].Amount += 1

	res := n.Verify()
	if res.OK() {
		t.Fatal("tampered chain reported valid")
	}
	if !errors.Is(res.Err, verify.ErrDigestMismatch) {
		t.Errorf("err = %v, want ErrDigestMismatch", res.Err)
	}
	if res.Index != 1 {
		t.Errorf("violation at block %d, want 1", res.Index)
	}
}

func TestStats(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	n.SetClock(func() int64 { return testTime + 600 })

	stats := n.Stats()
	if stats.TotalBlocks != 2 {
		t.Errorf("total blocks = %d, want 2", stats.TotalBlocks)
	}
	if stats.TotalTransactions != 1 {
		t.Errorf("total transactions = %d, want 1", stats.TotalTransactions)
	}
	if stats.TipIndex != 1 {
		t.Errorf("tip index = %d, want 1", stats.TipIndex)
	}
	if stats.AgeSeconds != 600 {
		t.Errorf("age = %ds, want 600", stats.AgeSeconds)
	}
}

func TestBlockByIndex(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	view, err := n.BlockByIndex(1)
	if err != nil {
		t.Fatalf("BlockByIndex: %v", err)
	}
	if view.TransactionCount != 1 {
		t.Errorf("transaction count = %d, want 1", view.TransactionCount)
	}
	if view.Transactions[0].Receiver != "Alice" {
		t.Errorf("receiver = %q, want Alice", view.Transactions[0].Receiver)
	}

	if _, err := n.BlockByIndex(99); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestToken(t *testing.T) {
	n := testNode(t)

	meta, err := n.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if meta.Symbol != "DTK" || meta.Name != "DemoToken" {
		t.Errorf("token = %s (%s), want DemoToken (DTK)", meta.Name, meta.Symbol)
	}
	if meta.Decimals != 18 {
		t.Errorf("decimals = %d, want 18", meta.Decimals)
	}
	if meta.Supply != 1_000_000 {
		t.Errorf("supply = %d, want 1000000", meta.Supply)
	}
}

func TestExport(t *testing.T) {
	n := testNode(t)

	if _, err := n.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if err := n.Export(path); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var snap explorer.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if snap.Stats.TotalBlocks != 2 {
		t.Errorf("exported total blocks = %d, want 2", snap.Stats.TotalBlocks)
	}
	if len(snap.Blocks) != 2 {
		t.Errorf("exported %d blocks, want 2", len(snap.Blocks))
	}
}

func TestResume(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreBadger

	n1, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n1.SetClock(func() int64 { return testTime })
	if _, err := n1.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n1.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// Submitted but never committed; dropped on restart.
	if _, err := n1.Transfer("0x0", "Bob", 250); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	n1.Close()

	n2, err := New(cfg)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer n2.Close()

	if n2.Height() != 1 {
		t.Errorf("resumed height = %d, want 1", n2.Height())
	}
	if got := n2.BalanceOf("Alice"); got != 500 {
		t.Errorf("Alice balance = %d after replay, want 500", got)
	}
	if got := n2.BalanceOf("Bob"); got != 0 {
		t.Errorf("Bob balance = %d, want 0 (uncommitted transfer dropped)", got)
	}
	if n2.PendingCount() != 0 {
		t.Errorf("pending = %d after restart, want 0", n2.PendingCount())
	}
	if res := n2.Verify(); !res.OK() {
		t.Errorf("resumed chain invalid: %v", res)
	}
}

func TestResume_GenesisMismatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreBadger

	n1, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n1.SetClock(func() int64 { return testTime })
	if _, err := n1.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if _, err := n1.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	n1.Close()

	g, err := config.LoadGenesis(cfg.GenesisFile())
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	g.ChainID = "some-other-chain"
	if err := g.Save(cfg.GenesisFile()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, err = New(cfg)
	if !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("err = %v, want ErrGenesisMismatch", err)
	}
}

func TestSortedAccounts(t *testing.T) {
	alloc := map[string]uint64{"zeta": 1, "alpha": 2, "mid": 3}
	got := sortedAccounts(alloc)
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedAccounts = %v, want %v", got, want)
		}
	}
}
