package tokenlist

import (
	"fmt"

	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
)

// Ref converts the entry into a token ref on chainID.
func (e Entry) Ref(chainID uint64) (token.Ref, error) {
	if !common.IsHexAddress(e.Address) {
		return token.Ref{}, fmt.Errorf("invalid token address %q", e.Address)
	}
	return token.Ref{
		ChainID:  chainID,
		Address:  common.HexToAddress(e.Address),
		Symbol:   e.Symbol,
		Decimals: e.Decimals,
	}, nil
}
