package types

// Account identifies a balance holder. Accounts are opaque strings chosen
// by the caller ("0x0", "Alice"); the ledger attaches no meaning to their
// contents beyond equality.
type Account string

// IsEmpty returns true for the empty account name, which no operation
// accepts as a party.
func (a Account) IsEmpty() bool {
	return a == ""
}
