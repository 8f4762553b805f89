package core

import (
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip1559"
	"github.com/ethereum/go-ethereum/core/types"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/signetlabs/signet-node/core/extract"
	"github.com/signetlabs/signet-node/core/vm"
)

// BaseFee returns the base fee of the rollup block at height built on top of
// parent. The first block uses the EIP-1559 initial base fee.
func BaseFee(config *ethparams.ChainConfig, parent *types.Header, height uint64) *big.Int {
	if height == 0 || parent == nil || parent.BaseFee == nil {
		return new(big.Int).SetUint64(ethparams.InitialBaseFee)
	}
	return eip1559.CalcBaseFee(config, parent)
}

// GasLimit returns the gas limit committed to by the sequencer, falling back
// to the parent's.
func GasLimit(extracts *extract.Extracts, parent *types.Header) uint64 {
	if extracts.ContainsBlock() {
		if gl := extracts.Submitted.Event.GasLimit; gl != nil {
			if !gl.IsUint64() {
				return math.MaxUint64
			}
			return gl.Uint64()
		}
	}
	return parent.GasLimit
}

// Beneficiary returns the reward address committed to by the sequencer,
// falling back to the parent's coinbase.
func Beneficiary(extracts *extract.Extracts, parent *types.Header) common.Address {
	if extracts.ContainsBlock() {
		return extracts.Submitted.Event.RewardAddress
	}
	return parent.Coinbase
}

// NewBlockEnv derives the execution environment of the rollup block produced
// from extracts on top of parent.
func NewBlockEnv(config *ethparams.ChainConfig, extracts *extract.Extracts, parent *types.Header) *vm.BlockEnv {
	return &vm.BlockEnv{
		Number:     extracts.RuHeight,
		Timestamp:  extracts.HostTimestamp,
		Coinbase:   Beneficiary(extracts, parent),
		GasLimit:   GasLimit(extracts, parent),
		BaseFee:    BaseFee(config, parent, extracts.RuHeight),
		PrevRandao: extracts.HostMixDigest,
		GetHash:    parentHashFn(parent),
	}
}

// parentHashFn resolves the parent hash for BLOCKHASH. Older ancestors are
// not tracked by the driver.
func parentHashFn(parent *types.Header) func(uint64) common.Hash {
	if parent == nil || parent.Number == nil {
		return nil
	}
	num, hash := parent.Number.Uint64(), parent.Hash()
	return func(n uint64) common.Hash {
		if n == num {
			return hash
		}
		return common.Hash{}
	}
}

// NextBlockEnv returns the environment of the block following parent at
// timestamp, rewarding coinbase. It is used where no host extracts exist
// yet: when simulating candidates for the next rollup block, and for host
// transactions carried by bundles.
func NextBlockEnv(config *ethparams.ChainConfig, parent *types.Header, timestamp uint64, coinbase common.Address) *vm.BlockEnv {
	number := parent.Number.Uint64() + 1
	return &vm.BlockEnv{
		Number:     number,
		Timestamp:  timestamp,
		Coinbase:   coinbase,
		GasLimit:   parent.GasLimit,
		BaseFee:    BaseFee(config, parent, number),
		PrevRandao: parent.MixDigest,
		GetHash:    parentHashFn(parent),
	}
}
