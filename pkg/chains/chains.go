package chains

import "fmt"

// Chain IDs of the networks the composer ships plugins for.
const (
	Mainnet   uint64 = 1
	Optimism  uint64 = 10
	Gnosis    uint64 = 100
	Polygon   uint64 = 137
	Base      uint64 = 8453
	Arbitrum  uint64 = 42161
	Avalanche uint64 = 43114
)

var names = map[uint64]string{
	Mainnet:   "mainnet",
	Optimism:  "optimism",
	Gnosis:    "gnosis",
	Polygon:   "polygon",
	Base:      "base",
	Arbitrum:  "arbitrum",
	Avalanche: "avalanche",
}

// Name returns a human readable name for the chain, or "chain-<id>" when unknown.
func Name(chainID uint64) string {
	if n, ok := names[chainID]; ok {
		return n
	}
	return fmt.Sprintf("chain-%d", chainID)
}
