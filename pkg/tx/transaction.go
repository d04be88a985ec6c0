// Package tx defines the transaction records bundled into blocks.
package tx

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Kind discriminates which ledger operation a transaction records.
type Kind uint8

const (
	KindTransfer Kind = iota
	KindApprove
	KindTransferFrom
)

// String returns the lower-camel operation name.
func (k Kind) String() string {
	switch k {
	case KindTransfer:
		return "transfer"
	case KindApprove:
		return "approve"
	case KindTransferFrom:
		return "transferFrom"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind resolves an operation name back to its Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "transfer":
		return KindTransfer, nil
	case "approve":
		return KindApprove, nil
	case "transferFrom":
		return KindTransferFrom, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MarshalJSON encodes the kind as its operation name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes an operation name into a kind.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Transaction is a single ledger operation recorded in a block.
// Transactions are immutable once created and owned by exactly one block;
// the party moving funds is always named explicitly, never taken from
// ambient caller identity.
type Transaction struct {
	Kind     Kind          `json:"kind"`
	Sender   types.Account `json:"sender"`
	Receiver types.Account `json:"receiver"`

	// Spender is the third party authorized to move Sender's funds.
	// Set only for KindTransferFrom.
	Spender types.Account `json:"spender,omitempty"`

	Amount uint64 `json:"amount"`

	// Timestamp is the logical creation time in unix seconds, supplied
	// by the caller's clock.
	Timestamp int64 `json:"timestamp"`
}

// NewTransfer records sender moving amount to receiver.
func NewTransfer(sender, receiver types.Account, amount uint64, timestamp int64) *Transaction {
	return &Transaction{
		Kind:      KindTransfer,
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: timestamp,
	}
}

// NewApprove records owner granting spender an allowance of amount.
// The grantee rides in the Receiver field.
func NewApprove(owner, spender types.Account, amount uint64, timestamp int64) *Transaction {
	return &Transaction{
		Kind:      KindApprove,
		Sender:    owner,
		Receiver:  spender,
		Amount:    amount,
		Timestamp: timestamp,
	}
}

// NewTransferFrom records spender moving amount from owner to receiver
// against a previously approved allowance.
func NewTransferFrom(owner, spender, receiver types.Account, amount uint64, timestamp int64) *Transaction {
	return &Transaction{
		Kind:      KindTransferFrom,
		Sender:    owner,
		Receiver:  receiver,
		Spender:   spender,
		Amount:    amount,
		Timestamp: timestamp,
	}
}

// Encode returns the canonical byte representation hashed into block
// digests. The layout is fixed so digests are reproducible across
// implementations.
// Format: kind(1) | sender_len(4)+sender | receiver_len(4)+receiver | spender_len(4)+spender | amount(8) | timestamp(8)
func (t *Transaction) Encode() []byte {
	var buf []byte

	buf = append(buf, byte(t.Kind))
	buf = appendAccount(buf, t.Sender)
	buf = appendAccount(buf, t.Receiver)
	buf = appendAccount(buf, t.Spender)
	buf = binary.LittleEndian.AppendUint64(buf, t.Amount)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(t.Timestamp))

	return buf
}

// Digest computes the transaction ID under the given hasher.
func (t *Transaction) Digest(h digest.Hasher) types.Digest {
	return h.Sum(t.Encode())
}

// appendAccount writes a length-prefixed account name.
func appendAccount(buf []byte, a types.Account) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a)))
	return append(buf, a...)
}
