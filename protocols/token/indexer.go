package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Indexer builds token indexes from raw token lists.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed token list from a raw slice of tokens.
func (i *Indexer) Index(tokens []Ref) *Index {
	return NewIndex(tokens)
}

// Index provides fast lookup into a single chain's token list.
type Index struct {
	byAddress map[common.Address]Ref
	bySymbol  map[string]Ref
	all       []Ref
}

// NewIndex creates a new token index from a raw slice.
// When two tokens share a symbol the first one wins the symbol slot.
func NewIndex(tokens []Ref) *Index {
	byAddress := make(map[common.Address]Ref, len(tokens))
	bySymbol := make(map[string]Ref, len(tokens))

	for _, t := range tokens {
		byAddress[t.Address] = t
		sym := strings.ToUpper(t.Symbol)
		if _, taken := bySymbol[sym]; !taken && sym != "" {
			bySymbol[sym] = t
		}
	}

	return &Index{
		byAddress: byAddress,
		bySymbol:  bySymbol,
		all:       tokens,
	}
}

// GetByAddress retrieves a token by its contract address.
func (idx *Index) GetByAddress(address common.Address) (Ref, bool) {
	t, ok := idx.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves a token by its symbol, ignoring case.
func (idx *Index) GetBySymbol(symbol string) (Ref, bool) {
	t, ok := idx.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Contains reports whether the token (by chain and address) is in the index.
func (idx *Index) Contains(ref Ref) bool {
	t, ok := idx.byAddress[ref.Address]
	return ok && t.ChainID == ref.ChainID
}

// Len returns the number of tokens in the index.
func (idx *Index) Len() int {
	return len(idx.all)
}

// All returns a defensive copy of the slice of all tokens in the index.
func (idx *Index) All() []Ref {
	allCopy := make([]Ref, len(idx.all))
	copy(allCopy, idx.all)
	return allCopy
}
