package vm

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Engine names the execution backend. Only the Go interpreter is supported.
const Engine = "go-evm"

// BlockEnv describes the block a transaction executes in.
type BlockEnv struct {
	Number     uint64
	Timestamp  uint64
	Coinbase   common.Address
	GasLimit   uint64
	BaseFee    *big.Int
	PrevRandao common.Hash
	// GetHash resolves ancestor hashes for BLOCKHASH. Nil resolves to the
	// zero hash.
	GetHash func(uint64) common.Hash
}

// Context returns the go-ethereum block context for the environment.
func (env *BlockEnv) Context() gethvm.BlockContext {
	getHash := env.GetHash
	if getHash == nil {
		getHash = func(uint64) common.Hash { return common.Hash{} }
	}
	random := env.PrevRandao
	baseFee := env.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	return gethvm.BlockContext{
		CanTransfer: core.CanTransfer,
		Transfer:    core.Transfer,
		GetHash:     getHash,
		Coinbase:    env.Coinbase,
		GasLimit:    env.GasLimit,
		BlockNumber: new(big.Int).SetUint64(env.Number),
		Time:        env.Timestamp,
		Difficulty:  new(big.Int),
		BaseFee:     new(big.Int).Set(baseFee),
		BlobBaseFee: big.NewInt(1),
		Random:      &random,
	}
}

// Config selects how an EVM instance is built.
type Config struct {
	// Hooks receive execution events. The state is wrapped so that balance,
	// nonce and log changes are reported too.
	Hooks *tracing.Hooks
	// NoBaseFee skips the fee cap check. System transactions run with a zero
	// gas price and rely on it.
	NoBaseFee bool
}

// NewEVM builds an EVM over statedb for the given block.
func NewEVM(env *BlockEnv, statedb *state.StateDB, chainConfig *params.ChainConfig, cfg Config) *gethvm.EVM {
	var sdb gethvm.StateDB = statedb
	if cfg.Hooks != nil {
		sdb = state.NewHookedState(statedb, cfg.Hooks)
	}
	return gethvm.NewEVM(env.Context(), sdb, chainConfig, gethvm.Config{
		Tracer:    cfg.Hooks,
		NoBaseFee: cfg.NoBaseFee,
	})
}

// Interrupt cancels evm once deadline passes. Cancellation is cooperative:
// the interpreter stops at the next opcode boundary. The returned function
// disarms the timer and reports whether it had already fired.
func Interrupt(evm *gethvm.EVM, deadline time.Time) (stop func() bool) {
	if deadline.IsZero() {
		return func() bool { return false }
	}
	timer := time.AfterFunc(time.Until(deadline), evm.Cancel)
	return func() bool { return !timer.Stop() }
}
