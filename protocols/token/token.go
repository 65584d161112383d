package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ref identifies an ERC20 token on a specific chain.
// Two refs are the same token when chain and address match; symbol and
// decimals are metadata.
type Ref struct {
	ChainID  uint64         `json:"chainId" yaml:"chain_id"`
	Address  common.Address `json:"address" yaml:"address"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// Key is the comparable identity of a Ref.
type Key struct {
	ChainID uint64
	Address common.Address
}

// Key returns the (chain, address) identity of the token.
func (r Ref) Key() Key {
	return Key{ChainID: r.ChainID, Address: r.Address}
}

// Equal reports whether both refs point at the same token.
func (r Ref) Equal(other Ref) bool {
	return r.Key() == other.Key()
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.ChainID == 0 && r.Address == (common.Address{})
}

func (r Ref) String() string {
	if r.Symbol != "" {
		return fmt.Sprintf("%s(%d:%s)", r.Symbol, r.ChainID, r.Address.Hex())
	}
	return fmt.Sprintf("%d:%s", r.ChainID, r.Address.Hex())
}
