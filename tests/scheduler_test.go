package tests

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/signetlabs/signet-node/bundle"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/internal/testutil"
	"github.com/signetlabs/signet-node/miner"
	"github.com/signetlabs/signet-node/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A bundle whose host transaction fills the order of its rollup transaction
// is built into the block, while a better paying order without a fill is
// dropped from the cache.
func TestBuildBundleWithHostFill(t *testing.T) {
	c := params.TestSystemConstants()
	filler, trader, greedy := newAccount(t), newAccount(t), newAccount(t)

	parent := &types.Header{
		Number:   big.NewInt(4),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(ethparams.InitialBaseFee),
	}
	rollupConfig := params.RollupChainConfig(c.RollupChainID())
	rollupState := fundedState(trader, greedy)
	rollupState.SetCode(c.Rollup.Orders, testutil.OrderEmitterCode(c.Rollup.Orders, c.Host.Tokens.USDC, payee, 300, c.HostChainID()))
	rollupState.Finalise(true)
	rollup := &miner.ChainEnv{
		Config: rollupConfig,
		Env:    core.NextBlockEnv(rollupConfig, parent, 1_000, params.TestDefaultRewardAddr),
		State:  rollupState,
		Orders: c.Rollup.Orders,
	}

	hostConfig := params.HostChainConfig(c.HostChainID())
	hostState := fundedState(filler)
	hostState.SetCode(c.Host.Orders, testutil.FilledEmitterCode(c.Host.Orders, c.Host.Tokens.USDC, payee, 300))
	hostState.Finalise(true)
	host := &miner.ChainEnv{
		Config: hostConfig,
		Env:    core.NextBlockEnv(hostConfig, parent, 1_000, params.TestDefaultRewardAddr),
		State:  hostState,
		Orders: c.Host.Orders,
	}

	fill := signTx(t, filler, c.HostChainID(), 0, c.Host.Orders, 100_000, 1)
	order := signTx(t, trader, c.RollupChainID(), 0, c.Rollup.Orders, 200_000, 1)
	b, err := bundle.Encode(types.Transactions{order}, types.Transactions{fill}, rollup.Env.Number)
	require.NoError(t, err)
	b.ReplacementUUID = "39637ce4-5f33-4eb6-8893-8cc325a6cca3"
	rb, err := b.Recover(types.LatestSignerForChainID(rollupConfig.ChainID), types.LatestSignerForChainID(hostConfig.ChainID))
	require.NoError(t, err)

	config := params.DefaultSimConfig
	cache := miner.NewSimCache(config)
	require.NoError(t, cache.AddBundle(rb, rollup.Env.BaseFee))
	unfilled := signTx(t, greedy, c.RollupChainID(), 0, c.Rollup.Orders, 200_000, 5)
	cache.AddTx(unfilled, greedy.addr, rollup.Env.BaseFee)

	env, err := miner.NewSimEnv(c, rollup, host, nil, cache, config)
	require.NoError(t, err)
	defer env.Close()

	block, err := miner.NewBlockBuild(env, time.Now().Add(300*time.Millisecond), config.MaxGas, config.MaxHostGas).
		Build(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, block.TxCount())
	assert.Equal(t, order.Hash(), block.Transactions()[0].Hash())
	assert.NotZero(t, block.HostGasUsed())
	assert.Zero(t, cache.Len())

	// the fill was consumed by the order and the host state advanced
	left := env.Fills().Filled(usdcKey, payee)
	assert.Zero(t, left.Uint64())
	assert.Equal(t, uint64(1), env.HostState().GetNonce(filler.addr))
	assert.Equal(t, uint64(1), env.State().GetNonce(trader.addr))
	assert.Zero(t, env.State().GetNonce(greedy.addr))
}
