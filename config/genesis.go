package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/dtklabs/dtkchain/pkg/digest"
	"github.com/dtklabs/dtkchain/pkg/types"
)

// Genesis holds the chain identity, the token definition and the initial
// balance allocations. This is immutable after the chain is initialized;
// a node refuses to resume an archive sealed under a different genesis.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`

	// Token definition
	Token TokenInfo `json:"token"`

	// Genesis block
	Timestamp int64  `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Initial allocations (account -> balance, minted before block 0 is sealed)
	Alloc map[string]uint64 `json:"alloc"`
}

// TokenInfo describes the token managed by the ledger.
type TokenInfo struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// DemoGenesis returns the demo chain genesis configuration: one token,
// the full supply allocated to a single treasury account.
func DemoGenesis() *Genesis {
	return &Genesis{
		ChainID:   "dtk-demo-1",
		ChainName: "DTK Demo Chain",
		Token: TokenInfo{
			Name:     "DemoToken",
			Symbol:   "DTK",
			Decimals: 18,
		},
		Timestamp: 1787616000, // 2026-08-25
		ExtraData: "DTK Chain Genesis",
		Alloc: map[string]uint64{
			"0x0": 1_000_000,
		},
	}
}

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Token.Name == "" {
		return fmt.Errorf("token name is required")
	}
	if g.Token.Symbol == "" {
		return fmt.Errorf("token symbol is required")
	}
	if g.Timestamp < 0 {
		return fmt.Errorf("timestamp must not be negative")
	}

	// Allocations are minted one account at a time, so the total must fit
	// in uint64 and every account must be named.
	var total uint64
	for account, amount := range g.Alloc {
		if account == "" {
			return fmt.Errorf("alloc account must not be empty")
		}
		if amount == 0 {
			return fmt.Errorf("alloc for %s must not be zero", account)
		}
		if amount > math.MaxUint64-total {
			return fmt.Errorf("genesis allocations overflow uint64")
		}
		total += amount
	}

	return nil
}

// Digest returns the digest of the genesis configuration under h. Used
// to detect an archive sealed under a different genesis.
func (g *Genesis) Digest(h digest.Hasher) (types.Digest, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Digest{}, err
	}
	return h.Sum(data), nil
}
