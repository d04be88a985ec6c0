// Package ledger implements the account balance and allowance state
// machine. The ledger's maps are the single source of truth for balances;
// nothing outside this package writes to them.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dtklabs/dtkchain/pkg/tx"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Operation errors.
var (
	ErrAlreadyInitialized    = errors.New("account already initialized")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrEmptyAccount          = errors.New("empty account name")
	ErrSupplyOverflow        = errors.New("total supply overflow")
	ErrNilTx                 = errors.New("nil transaction")
)

// allowanceKey identifies an (owner, spender) grant.
type allowanceKey struct {
	owner   types.Account
	spender types.Account
}

// Ledger tracks per-account balances and per-(owner, spender) allowances.
// Mutations are serialized and atomic: an operation validates fully before
// touching state, so either all of its updates apply or none do.
type Ledger struct {
	mu         sync.RWMutex
	balances   map[types.Account]uint64
	allowances map[allowanceKey]uint64
	supply     uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[types.Account]uint64),
		allowances: make(map[allowanceKey]uint64),
	}
}

// Mint seeds an account with its initial balance. Minting happens once per
// account at genesis; a repeat fails with ErrAlreadyInitialized. Supply is
// capped at the uint64 maximum here, which is what keeps every later
// credit in Transfer and TransferFrom overflow-free.
func (l *Ledger) Mint(account types.Account, amount uint64) error {
	if account.IsEmpty() {
		return ErrEmptyAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.balances[account]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, account)
	}
	if l.supply > math.MaxUint64-amount {
		return fmt.Errorf("%w: minting %d on top of %d", ErrSupplyOverflow, amount, l.supply)
	}

	l.balances[account] = amount
	l.supply += amount
	return nil
}

// Transfer moves amount from sender to receiver. It fails with
// ErrInsufficientBalance when sender cannot cover amount, leaving both
// balances untouched.
func (l *Ledger) Transfer(sender, receiver types.Account, amount uint64) error {
	if sender.IsEmpty() || receiver.IsEmpty() {
		return ErrEmptyAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.transferLocked(sender, receiver, amount)
}

// transferLocked debits sender and credits receiver. Callers hold l.mu.
func (l *Ledger) transferLocked(sender, receiver types.Account, amount uint64) error {
	if l.balances[sender] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, sender, l.balances[sender], amount)
	}

	l.balances[sender] -= amount
	l.balances[receiver] += amount
	return nil
}

// Approve grants spender the right to move up to amount out of owner's
// balance. The grant is gated on owner presently holding at least amount.
// A repeat approve overwrites the allowance, it never accumulates.
func (l *Ledger) Approve(owner, spender types.Account, amount uint64) error {
	if owner.IsEmpty() || spender.IsEmpty() {
		return ErrEmptyAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[owner] < amount {
		return fmt.Errorf("%w: %s has %d, approving %d", ErrInsufficientBalance, owner, l.balances[owner], amount)
	}

	l.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

// TransferFrom moves amount from owner to receiver on spender's authority.
// The allowance is checked before the balance; on success the allowance
// decrement, owner debit, and receiver credit apply together. On any
// failure neither balances nor the allowance change.
func (l *Ledger) TransferFrom(owner, spender, receiver types.Account, amount uint64) error {
	if owner.IsEmpty() || spender.IsEmpty() || receiver.IsEmpty() {
		return ErrEmptyAccount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := allowanceKey{owner, spender}
	if l.allowances[key] < amount {
		return fmt.Errorf("%w: %s allows %s %d, needs %d", ErrInsufficientAllowance, owner, spender, l.allowances[key], amount)
	}
	if err := l.transferLocked(owner, receiver, amount); err != nil {
		return err
	}

	l.allowances[key] -= amount
	return nil
}

// Apply dispatches a recorded transaction to the matching operation.
// This is the replay path when rebuilding ledger state from archived
// blocks.
func (l *Ledger) Apply(t *tx.Transaction) error {
	if t == nil {
		return ErrNilTx
	}
	if err := t.Validate(); err != nil {
		return err
	}

	switch t.Kind {
	case tx.KindTransfer:
		return l.Transfer(t.Sender, t.Receiver, t.Amount)
	case tx.KindApprove:
		return l.Approve(t.Sender, t.Receiver, t.Amount)
	case tx.KindTransferFrom:
		return l.TransferFrom(t.Sender, t.Spender, t.Receiver, t.Amount)
	default:
		return fmt.Errorf("%w: %d", tx.ErrUnknownKind, uint8(t.Kind))
	}
}

// BalanceOf returns account's balance. Unknown accounts hold 0.
func (l *Ledger) BalanceOf(account types.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.balances[account]
}

// AllowanceOf returns the remaining allowance owner has granted spender.
// Unknown pairs hold 0.
func (l *Ledger) AllowanceOf(owner, spender types.Account) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.allowances[allowanceKey{owner, spender}]
}

// TotalSupply returns the sum of all minted balances. Transfers conserve
// it; only Mint moves it.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.supply
}

// Accounts returns every known account sorted by name.
func (l *Ledger) Accounts() []types.Account {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts := make([]types.Account, 0, len(l.balances))
	for a := range l.balances {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts
}

// Balances returns a consistent snapshot of all account balances.
func (l *Ledger) Balances() map[types.Account]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[types.Account]uint64, len(l.balances))
	for a, b := range l.balances {
		out[a] = b
	}
	return out
}
