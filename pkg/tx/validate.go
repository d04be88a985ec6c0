package tx

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrUnknownKind       = errors.New("unknown transaction kind")
	ErrEmptySender       = errors.New("empty sender account")
	ErrEmptyReceiver     = errors.New("empty receiver account")
	ErrMissingSpender    = errors.New("transferFrom requires a spender")
	ErrUnexpectedSpender = errors.New("spender set on non-transferFrom transaction")
)

// Validate checks transaction structure and basic rules.
// This does NOT check balances or allowances (that requires the ledger).
// A zero amount is structurally valid.
func (t *Transaction) Validate() error {
	switch t.Kind {
	case KindTransfer, KindApprove:
		if !t.Spender.IsEmpty() {
			return fmt.Errorf("%w: %s", ErrUnexpectedSpender, t.Kind)
		}
	case KindTransferFrom:
		if t.Spender.IsEmpty() {
			return ErrMissingSpender
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, uint8(t.Kind))
	}

	if t.Sender.IsEmpty() {
		return ErrEmptySender
	}
	if t.Receiver.IsEmpty() {
		return ErrEmptyReceiver
	}

	return nil
}
