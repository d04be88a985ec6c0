package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dtklabs/dtkchain/internal/storage"
)

var prefixToken = []byte("t/") // t/<symbol> -> Metadata JSON

// Store persists token metadata.
type Store struct {
	db storage.DB
}

// NewStore creates a token metadata store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Put stores metadata under its symbol, overwriting any previous entry.
func (s *Store) Put(meta *Metadata) error {
	if meta == nil {
		return fmt.Errorf("token metadata is nil")
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("token marshal: %w", err)
	}
	return s.db.Put(tokenKey(meta.Symbol), data)
}

// Register stores metadata only if the symbol is not taken yet.
func (s *Store) Register(meta *Metadata) error {
	if meta == nil {
		return fmt.Errorf("token metadata is nil")
	}
	has, err := s.Has(meta.Symbol)
	if err != nil {
		return err
	}
	if has {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, meta.Symbol)
	}
	return s.Put(meta)
}

// Get retrieves metadata by symbol.
func (s *Store) Get(symbol string) (*Metadata, error) {
	data, err := s.db.Get(tokenKey(symbol))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("token get: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("token unmarshal: %w", err)
	}
	return &meta, nil
}

// Has checks if metadata exists for a symbol.
func (s *Store) Has(symbol string) (bool, error) {
	return s.db.Has(tokenKey(symbol))
}

// ForEach iterates over all token metadata entries.
// Return a non-nil error from fn to stop iteration early.
func (s *Store) ForEach(fn func(*Metadata) error) error {
	return s.db.ForEach(prefixToken, func(key, value []byte) error {
		var meta Metadata
		if err := json.Unmarshal(value, &meta); err != nil {
			return nil // Skip corrupt entries.
		}
		return fn(&meta)
	})
}

// List returns all token metadata entries sorted by symbol.
func (s *Store) List() ([]Metadata, error) {
	entries := []Metadata{}
	err := s.ForEach(func(meta *Metadata) error {
		entries = append(entries, *meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return entries, nil
}

func tokenKey(symbol string) []byte {
	return append(prefixToken, symbol...)
}
