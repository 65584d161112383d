package uniswapv2

import (
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
)

// Indexer builds pool indexes for the swapper.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool set from a raw slice of pools.
func (i *Indexer) Index(pools []PoolView) *IndexablePoolSet {
	return NewIndexablePoolSet(pools)
}

// IndexablePoolSet provides fast, indexed access to constant-product pools.
type IndexablePoolSet struct {
	byID   map[uint64]PoolView
	byPair map[pairKey][]PoolView
	all    []PoolView
}

type pairKey struct {
	a, b token.Key
}

func newPairKey(x, y token.Ref) pairKey {
	kx, ky := x.Key(), y.Key()
	if kx.ChainID > ky.ChainID || (kx.ChainID == ky.ChainID && kx.Address.Cmp(ky.Address) > 0) {
		kx, ky = ky, kx
	}
	return pairKey{a: kx, b: ky}
}

// NewIndexablePoolSet creates a new indexed pool set.
func NewIndexablePoolSet(pools []PoolView) *IndexablePoolSet {
	byID := make(map[uint64]PoolView, len(pools))
	byPair := make(map[pairKey][]PoolView)

	for _, p := range pools {
		byID[p.ID] = p
		k := newPairKey(p.Token0, p.Token1)
		byPair[k] = append(byPair[k], p)
	}

	return &IndexablePoolSet{
		byID:   byID,
		byPair: byPair,
		all:    pools,
	}
}

// GetByID retrieves a pool by its unique ID.
func (s *IndexablePoolSet) GetByID(id uint64) (PoolView, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// GetByPair returns every pool trading x against y, in either order.
func (s *IndexablePoolSet) GetByPair(x, y token.Ref) []PoolView {
	pools := s.byPair[newPairKey(x, y)]
	out := make([]PoolView, len(pools))
	copy(out, pools)
	return out
}

// All returns a defensive copy of the slice of all pools.
func (s *IndexablePoolSet) All() []PoolView {
	allCopy := make([]PoolView, len(s.all))
	copy(allCopy, s.all)
	return allCopy
}
