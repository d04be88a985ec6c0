// Package token keeps the registry of token metadata.
//
// The ledger tracks balances as bare numbers; this registry records what
// those numbers denominate. Metadata is keyed by symbol and persisted in
// the storage backend, so explorers can describe the token without
// replaying the chain.
package token

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	ErrNotFound      = errors.New("token not found")
	ErrEmptySymbol   = errors.New("token symbol is empty")
	ErrAlreadyExists = errors.New("token already registered")
)

// Metadata holds descriptive information about a token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Supply   uint64 `json:"supply"`
}

// Validate checks that the metadata names a usable token.
func (m *Metadata) Validate() error {
	if m.Symbol == "" {
		return ErrEmptySymbol
	}
	if m.Name == "" {
		return fmt.Errorf("token %s: name is empty", m.Symbol)
	}
	return nil
}
