package ledger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// testLedger returns a ledger seeded with the demo token supply.
func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New()
	if err := l.Mint("0x0", 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return l
}

// checkSupply fails the test when the sum of balances drifts from the
// recorded total supply.
func checkSupply(t *testing.T, l *Ledger) {
	t.Helper()
	var sum uint64
	for _, b := range l.Balances() {
		sum += b
	}
	if sum != l.TotalSupply() {
		t.Fatalf("sum(balances) = %d, total supply = %d", sum, l.TotalSupply())
	}
}

// --- Mint Tests ---

func TestMint(t *testing.T) {
	l := New()

	if err := l.Mint("0x0", 1_000_000); err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if got := l.BalanceOf("0x0"); got != 1_000_000 {
		t.Errorf("BalanceOf(0x0) = %d, want 1000000", got)
	}
	if got := l.TotalSupply(); got != 1_000_000 {
		t.Errorf("TotalSupply() = %d, want 1000000", got)
	}
}

func TestMint_Twice(t *testing.T) {
	l := testLedger(t)

	err := l.Mint("0x0", 500)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second mint err = %v, want ErrAlreadyInitialized", err)
	}
	if got := l.BalanceOf("0x0"); got != 1_000_000 {
		t.Errorf("balance after failed mint = %d, want 1000000", got)
	}
}

func TestMint_EmptyAccount(t *testing.T) {
	l := New()
	if err := l.Mint("", 100); !errors.Is(err, ErrEmptyAccount) {
		t.Errorf("Mint(\"\") err = %v, want ErrEmptyAccount", err)
	}
}

func TestMint_SupplyOverflow(t *testing.T) {
	l := New()
	if err := l.Mint("a", math.MaxUint64); err != nil {
		t.Fatalf("Mint(MaxUint64): %v", err)
	}

	err := l.Mint("b", 1)
	if !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("overflowing mint err = %v, want ErrSupplyOverflow", err)
	}
	if got := l.BalanceOf("b"); got != 0 {
		t.Errorf("balance after failed mint = %d, want 0", got)
	}
}

// --- Transfer Tests ---

func TestTransfer(t *testing.T) {
	l := testLedger(t)

	if err := l.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got := l.BalanceOf("0x0"); got != 999_500 {
		t.Errorf("BalanceOf(0x0) = %d, want 999500", got)
	}
	if got := l.BalanceOf("Alice"); got != 500 {
		t.Errorf("BalanceOf(Alice) = %d, want 500", got)
	}
	checkSupply(t, l)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	l := testLedger(t)

	err := l.Transfer("Alice", "Bob", 1)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Transfer from empty account err = %v, want ErrInsufficientBalance", err)
	}

	// Nothing moved.
	if got := l.BalanceOf("Alice"); got != 0 {
		t.Errorf("BalanceOf(Alice) = %d, want 0", got)
	}
	if got := l.BalanceOf("Bob"); got != 0 {
		t.Errorf("BalanceOf(Bob) = %d, want 0", got)
	}
	checkSupply(t, l)
}

func TestTransfer_ExactBalance(t *testing.T) {
	l := testLedger(t)

	if err := l.Transfer("0x0", "Alice", 1_000_000); err != nil {
		t.Fatalf("Transfer of full balance: %v", err)
	}
	if got := l.BalanceOf("0x0"); got != 0 {
		t.Errorf("BalanceOf(0x0) = %d, want 0", got)
	}
	checkSupply(t, l)
}

func TestTransfer_ZeroAmount(t *testing.T) {
	l := testLedger(t)

	if err := l.Transfer("0x0", "Alice", 0); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if got := l.BalanceOf("Alice"); got != 0 {
		t.Errorf("BalanceOf(Alice) = %d, want 0", got)
	}
}

func TestTransfer_SelfTransfer(t *testing.T) {
	l := testLedger(t)

	if err := l.Transfer("0x0", "0x0", 100); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := l.BalanceOf("0x0"); got != 1_000_000 {
		t.Errorf("BalanceOf(0x0) after self transfer = %d, want 1000000", got)
	}
	checkSupply(t, l)
}

func TestTransfer_EmptyAccounts(t *testing.T) {
	l := testLedger(t)

	if err := l.Transfer("", "Alice", 1); !errors.Is(err, ErrEmptyAccount) {
		t.Errorf("empty sender err = %v, want ErrEmptyAccount", err)
	}
	if err := l.Transfer("0x0", "", 1); !errors.Is(err, ErrEmptyAccount) {
		t.Errorf("empty receiver err = %v, want ErrEmptyAccount", err)
	}
}

// --- Approve Tests ---

func TestApprove(t *testing.T) {
	l := testLedger(t)
	if err := l.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("setup transfer: %v", err)
	}

	if err := l.Approve("Alice", "Bob", 200); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 200 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 200", got)
	}

	// Approving does not move any balance.
	if got := l.BalanceOf("Alice"); got != 500 {
		t.Errorf("BalanceOf(Alice) = %d, want 500", got)
	}
	if got := l.BalanceOf("Bob"); got != 0 {
		t.Errorf("BalanceOf(Bob) = %d, want 0", got)
	}
}

func TestApprove_RequiresBalance(t *testing.T) {
	l := testLedger(t)

	// Alice holds nothing, so she cannot grant an allowance.
	err := l.Approve("Alice", "Bob", 1)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Approve beyond balance err = %v, want ErrInsufficientBalance", err)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 0 {
		t.Errorf("allowance after failed approve = %d, want 0", got)
	}
}

func TestApprove_Overwrites(t *testing.T) {
	l := testLedger(t)

	if err := l.Approve("0x0", "Bob", 300); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if err := l.Approve("0x0", "Bob", 100); err != nil {
		t.Fatalf("second approve: %v", err)
	}

	// Overwritten, not accumulated.
	if got := l.AllowanceOf("0x0", "Bob"); got != 100 {
		t.Errorf("AllowanceOf(0x0, Bob) = %d, want 100", got)
	}
}

func TestApprove_ToZero(t *testing.T) {
	l := testLedger(t)

	if err := l.Approve("0x0", "Bob", 300); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.Approve("0x0", "Bob", 0); err != nil {
		t.Fatalf("revoke via zero approve: %v", err)
	}
	if got := l.AllowanceOf("0x0", "Bob"); got != 0 {
		t.Errorf("AllowanceOf(0x0, Bob) = %d, want 0", got)
	}
}

func TestApprove_PerSpenderGrants(t *testing.T) {
	l := testLedger(t)

	l.Approve("0x0", "Bob", 100)
	l.Approve("0x0", "Carol", 200)

	if got := l.AllowanceOf("0x0", "Bob"); got != 100 {
		t.Errorf("AllowanceOf(0x0, Bob) = %d, want 100", got)
	}
	if got := l.AllowanceOf("0x0", "Carol"); got != 200 {
		t.Errorf("AllowanceOf(0x0, Carol) = %d, want 200", got)
	}
	// The reverse direction is a separate grant.
	if got := l.AllowanceOf("Bob", "0x0"); got != 0 {
		t.Errorf("AllowanceOf(Bob, 0x0) = %d, want 0", got)
	}
}

// --- TransferFrom Tests ---

func TestTransferFrom(t *testing.T) {
	l := testLedger(t)
	l.Transfer("0x0", "Alice", 500)
	l.Approve("Alice", "Bob", 200)

	if err := l.TransferFrom("Alice", "Bob", "Charlie", 200); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	if got := l.BalanceOf("Alice"); got != 300 {
		t.Errorf("BalanceOf(Alice) = %d, want 300", got)
	}
	if got := l.BalanceOf("Charlie"); got != 200 {
		t.Errorf("BalanceOf(Charlie) = %d, want 200", got)
	}
	if got := l.BalanceOf("Bob"); got != 0 {
		t.Errorf("BalanceOf(Bob) = %d, want 0 (spender gains nothing)", got)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 0 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 0", got)
	}
	checkSupply(t, l)
}

func TestTransferFrom_InsufficientAllowance(t *testing.T) {
	l := testLedger(t)
	l.Transfer("0x0", "Alice", 500)
	l.Approve("Alice", "Bob", 200)
	l.TransferFrom("Alice", "Bob", "Charlie", 200)

	// Allowance is spent; one more unit must fail.
	err := l.TransferFrom("Alice", "Bob", "Charlie", 1)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("TransferFrom err = %v, want ErrInsufficientAllowance", err)
	}
	if got := l.BalanceOf("Alice"); got != 300 {
		t.Errorf("BalanceOf(Alice) = %d, want 300", got)
	}
	if got := l.BalanceOf("Charlie"); got != 200 {
		t.Errorf("BalanceOf(Charlie) = %d, want 200", got)
	}
}

func TestTransferFrom_AllowanceCheckedFirst(t *testing.T) {
	l := testLedger(t)

	// No allowance, no balance: the allowance failure wins.
	err := l.TransferFrom("Alice", "Bob", "Charlie", 10)
	if !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("TransferFrom err = %v, want ErrInsufficientAllowance", err)
	}
}

func TestTransferFrom_InsufficientBalance(t *testing.T) {
	l := testLedger(t)
	l.Transfer("0x0", "Alice", 100)
	l.Approve("Alice", "Bob", 100)

	// Alice spends her balance directly after approving.
	l.Transfer("Alice", "Dave", 60)

	err := l.TransferFrom("Alice", "Bob", "Charlie", 100)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("TransferFrom err = %v, want ErrInsufficientBalance", err)
	}

	// The allowance survives a balance failure.
	if got := l.AllowanceOf("Alice", "Bob"); got != 100 {
		t.Errorf("allowance after failed transferFrom = %d, want 100", got)
	}
	if got := l.BalanceOf("Charlie"); got != 0 {
		t.Errorf("BalanceOf(Charlie) = %d, want 0", got)
	}
	checkSupply(t, l)
}

func TestTransferFrom_PartialSpend(t *testing.T) {
	l := testLedger(t)
	l.Transfer("0x0", "Alice", 500)
	l.Approve("Alice", "Bob", 200)

	if err := l.TransferFrom("Alice", "Bob", "Charlie", 80); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	// Decreases by exactly the spent amount.
	if got := l.AllowanceOf("Alice", "Bob"); got != 120 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 120", got)
	}
}

// --- Scenario and Property Tests ---

func TestDemoTokenFlow(t *testing.T) {
	l := New()

	if err := l.Mint("0x0", 1_000_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer("0x0", "Alice", 500); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf("0x0"); got != 999_500 {
		t.Errorf("BalanceOf(0x0) = %d, want 999500", got)
	}
	if got := l.BalanceOf("Alice"); got != 500 {
		t.Errorf("BalanceOf(Alice) = %d, want 500", got)
	}

	if err := l.Approve("Alice", "Bob", 200); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 200 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 200", got)
	}

	if err := l.TransferFrom("Alice", "Bob", "Charlie", 200); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := l.BalanceOf("Alice"); got != 300 {
		t.Errorf("BalanceOf(Alice) = %d, want 300", got)
	}
	if got := l.BalanceOf("Charlie"); got != 200 {
		t.Errorf("BalanceOf(Charlie) = %d, want 200", got)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 0 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 0", got)
	}

	if err := l.TransferFrom("Alice", "Bob", "Charlie", 1); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("exhausted allowance err = %v, want ErrInsufficientAllowance", err)
	}
	checkSupply(t, l)
}

func TestConservation(t *testing.T) {
	l := testLedger(t)

	ops := []func() error{
		func() error { return l.Transfer("0x0", "Alice", 1000) },
		func() error { return l.Transfer("Alice", "Bob", 400) },
		func() error { return l.Approve("Bob", "Alice", 300) },
		func() error { return l.TransferFrom("Bob", "Alice", "Carol", 250) },
		func() error { return l.Transfer("Carol", "0x0", 100) },
		func() error { return l.Transfer("Alice", "Alice", 50) },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		checkSupply(t, l)
	}

	if got := l.TotalSupply(); got != 1_000_000 {
		t.Errorf("TotalSupply() = %d, want 1000000", got)
	}
}

func TestConcurrentTransfers_ConserveSupply(t *testing.T) {
	l := New()
	accounts := []types.Account{"a", "b", "c", "d"}
	for _, a := range accounts {
		if err := l.Mint(a, 10_000); err != nil {
			t.Fatalf("mint %s: %v", a, err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				from := accounts[(n+j)%len(accounts)]
				to := accounts[(n+j+1)%len(accounts)]
				// Failures are fine; torn updates are not.
				l.Transfer(from, to, 3)
				l.BalanceOf(from)
			}
		}(i)
	}
	wg.Wait()

	var sum uint64
	for _, b := range l.Balances() {
		sum += b
	}
	if sum != 40_000 {
		t.Errorf("sum(balances) after concurrent transfers = %d, want 40000", sum)
	}
}

// --- Apply Tests ---

func TestApply(t *testing.T) {
	l := testLedger(t)

	txs := []*tx.Transaction{
		tx.NewTransfer("0x0", "Alice", 500, 1),
		tx.NewApprove("Alice", "Bob", 200, 2),
		tx.NewTransferFrom("Alice", "Bob", "Charlie", 200, 3),
	}
	for i, txn := range txs {
		if err := l.Apply(txn); err != nil {
			t.Fatalf("Apply tx %d: %v", i, err)
		}
	}

	if got := l.BalanceOf("Alice"); got != 300 {
		t.Errorf("BalanceOf(Alice) = %d, want 300", got)
	}
	if got := l.BalanceOf("Charlie"); got != 200 {
		t.Errorf("BalanceOf(Charlie) = %d, want 200", got)
	}
	if got := l.AllowanceOf("Alice", "Bob"); got != 0 {
		t.Errorf("AllowanceOf(Alice, Bob) = %d, want 0", got)
	}
}

func TestApply_NilAndInvalid(t *testing.T) {
	l := testLedger(t)

	if err := l.Apply(nil); !errors.Is(err, ErrNilTx) {
		t.Errorf("Apply(nil) err = %v, want ErrNilTx", err)
	}

	bad := &tx.Transaction{Kind: tx.KindTransfer, Receiver: "Bob", Amount: 1}
	if err := l.Apply(bad); !errors.Is(err, tx.ErrEmptySender) {
		t.Errorf("Apply(invalid) err = %v, want tx.ErrEmptySender", err)
	}
}

// --- Read Tests ---

func TestBalanceOf_Unknown(t *testing.T) {
	l := New()
	if got := l.BalanceOf("nobody"); got != 0 {
		t.Errorf("BalanceOf(unknown) = %d, want 0", got)
	}
}

func TestAllowanceOf_Unknown(t *testing.T) {
	l := New()
	if got := l.AllowanceOf("nobody", "no-one"); got != 0 {
		t.Errorf("AllowanceOf(unknown) = %d, want 0", got)
	}
}

func TestAccounts_Sorted(t *testing.T) {
	l := New()
	for _, a := range []types.Account{"zeta", "alpha", "mid"} {
		if err := l.Mint(a, 1); err != nil {
			t.Fatalf("mint %s: %v", a, err)
		}
	}

	got := l.Accounts()
	want := []types.Account{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("Accounts() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Accounts()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBalances_Snapshot(t *testing.T) {
	l := testLedger(t)

	snap := l.Balances()
	snap["0x0"] = 0

	if got := l.BalanceOf("0x0"); got != 1_000_000 {
		t.Errorf("mutating the snapshot changed the ledger: %d", got)
	}
}

func TestErrorMessages_NameTheParties(t *testing.T) {
	l := testLedger(t)

	err := l.Transfer("Alice", "Bob", 10)
	if err == nil {
		t.Fatal("expected error")
	}
	want := fmt.Sprintf("%s: Alice has 0, needs 10", ErrInsufficientBalance)
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
}
