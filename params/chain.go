package params

import (
	"math/big"

	ethparams "github.com/ethereum/go-ethereum/params"
)

// RollupChainConfig returns the EVM chain configuration used for rollup
// execution. All forks up to the latest supported one are active from
// genesis.
func RollupChainConfig(chainID uint64) *ethparams.ChainConfig {
	return mergedConfig(chainID)
}

// HostChainConfig returns the EVM chain configuration used when simulating
// host-side bundle transactions.
func HostChainConfig(chainID uint64) *ethparams.ChainConfig {
	return mergedConfig(chainID)
}

func mergedConfig(chainID uint64) *ethparams.ChainConfig {
	cfg := *ethparams.MergedTestChainConfig
	cfg.ChainID = new(big.Int).SetUint64(chainID)
	return &cfg
}

// ForkName reports the latest fork active at the given block, for logging.
func ForkName(cfg *ethparams.ChainConfig, num uint64, ts uint64) string {
	bn := new(big.Int).SetUint64(num)
	switch {
	case cfg.IsOsaka(bn, ts):
		return "osaka"
	case cfg.IsPrague(bn, ts):
		return "prague"
	case cfg.IsCancun(bn, ts):
		return "cancun"
	case cfg.IsShanghai(bn, ts):
		return "shanghai"
	case cfg.IsLondon(bn):
		return "london"
	case cfg.IsBerlin(bn):
		return "berlin"
	case cfg.IsIstanbul(bn):
		return "istanbul"
	case cfg.IsByzantium(bn):
		return "byzantium"
	case cfg.IsHomestead(bn):
		return "homestead"
	default:
		return "frontier"
	}
}
