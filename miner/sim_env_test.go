package miner

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/core/vm"
	"github.com/signetlabs/signet-node/internal/testutil"
	"github.com/signetlabs/signet-node/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	gwei    = big.NewInt(ethparams.GWei)
	funding = new(big.Int).Mul(big.NewInt(100), big.NewInt(ethparams.Ether))
	payee   = common.HexToAddress("0xbeef")
)

type simTest struct {
	t       *testing.T
	config  *ethparams.ChainConfig
	env     *vm.BlockEnv
	statedb *state.StateDB
	keys    []*ecdsa.PrivateKey
	cache   *SimCache
}

func newSimTest(t *testing.T, keys int) *simTest {
	config := params.RollupChainConfig(params.TestRollupChainID)
	parent := &types.Header{
		Number:   big.NewInt(4),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(ethparams.InitialBaseFee),
	}
	st := &simTest{
		t:       t,
		config:  config,
		env:     core.NextBlockEnv(config, parent, 1_000, params.TestDefaultRewardAddr),
		statedb: testutil.NewState(),
		cache:   newCache(10),
	}
	for i := 0; i < keys; i++ {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		st.keys = append(st.keys, key)
		st.statedb.AddBalance(st.addr(i), uint256.MustFromBig(funding), tracing.BalanceChangeUnspecified)
	}
	st.statedb.Finalise(true)
	return st
}

func (s *simTest) addr(i int) common.Address {
	return crypto.PubkeyToAddress(s.keys[i].PublicKey)
}

// tx signs a transaction from key i paying tip gwei per gas.
func (s *simTest) tx(i int, nonce uint64, to common.Address, gas uint64, tip int64) *types.Transaction {
	tx, err := types.SignNewTx(s.keys[i], signer, &types.DynamicFeeTx{
		ChainID:   s.config.ChainID,
		Nonce:     nonce,
		GasTipCap: new(big.Int).Mul(big.NewInt(tip), gwei),
		GasFeeCap: new(big.Int).Mul(big.NewInt(100), gwei),
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
	})
	require.NoError(s.t, err)
	return tx
}

func (s *simTest) addTx(i int, tx *types.Transaction) *SimItem {
	item := NewTxItem(tx, s.addr(i))
	s.cache.Add(item, s.env.BaseFee)
	return item
}

func (s *simTest) simEnv(fills *orders.AggregateFills) *SimEnv {
	rollup := &ChainEnv{Config: s.config, Env: s.env, State: s.statedb, Orders: params.TestRollupOrders}
	env, err := NewSimEnv(params.TestSystemConstants(), rollup, nil, fills, s.cache, params.DefaultSimConfig)
	require.NoError(s.t, err)
	s.t.Cleanup(env.Close)
	return env
}

func soon() time.Time { return time.Now().Add(5 * time.Second) }

func TestSimRoundPicksHighestScore(t *testing.T) {
	st := newSimTest(t, 2)
	low := st.addTx(0, st.tx(0, 0, payee, 21_000, 1))
	high := st.addTx(1, st.tx(1, 0, payee, 21_000, 2))
	env := st.simEnv(nil)

	out, err := env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Same(t, high, out.Item)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(42_000), gwei), out.Score.ToBig())
	assert.Equal(t, uint64(21_000), out.GasUsed)

	// only the winner is merged
	assert.Equal(t, uint64(1), env.State().GetNonce(st.addr(1)))
	assert.Zero(t, env.State().GetNonce(st.addr(0)))
	assert.Zero(t, st.statedb.GetNonce(st.addr(1)))
	assert.Equal(t, 1, st.cache.Len())

	out, err = env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Same(t, low, out.Item)
	assert.Equal(t, uint64(1), env.State().GetNonce(st.addr(0)))

	out, err = env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSimRoundRemovesFailures(t *testing.T) {
	tests := []struct {
		name   string
		tx     func(st *simTest) *types.Transaction
		maxGas uint64
	}{
		{"nonce gap", func(st *simTest) *types.Transaction { return st.tx(0, 5, payee, 21_000, 1) }, 30_000_000},
		{"zero score", func(st *simTest) *types.Transaction { return st.tx(0, 0, payee, 21_000, 0) }, 30_000_000},
		{"over gas budget", func(st *simTest) *types.Transaction { return st.tx(0, 0, payee, 21_000, 1) }, 20_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newSimTest(t, 1)
			item := st.addTx(0, tt.tx(st))
			env := st.simEnv(nil)

			out, err := env.SimRound(tt.maxGas, 0, soon())
			require.NoError(t, err)
			assert.Nil(t, out)
			assert.Zero(t, st.cache.Len())
			assert.False(t, st.cache.Disallowed(item.Identifier()))
			assert.Zero(t, env.State().GetNonce(st.addr(0)))
		})
	}
}

func TestSimRoundConsumesFills(t *testing.T) {
	st := newSimTest(t, 2)
	st.statedb.SetCode(params.TestRollupOrders,
		testutil.OrderEmitterCode(params.TestRollupOrders, params.TestHostUSDC, payee, 300, params.TestHostChainID))
	st.statedb.Finalise(true)

	ledger := orders.NewAggregateFills()
	ledger.AddRawFill(params.TestHostChainID, params.TestHostUSDC, payee, uint256.NewInt(500))
	first := st.addTx(0, st.tx(0, 0, params.TestRollupOrders, 200_000, 2))
	st.addTx(1, st.tx(1, 0, params.TestRollupOrders, 200_000, 1))
	env := st.simEnv(ledger)

	out, err := env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Same(t, first, out.Item)

	key := orders.AssetKey{ChainID: params.TestHostChainID, Token: params.TestHostUSDC}
	left := env.Fills().Filled(key, payee)
	assert.Equal(t, uint64(200), left.Uint64())
	before := ledger.Filled(key, payee)
	assert.Equal(t, uint64(500), before.Uint64())

	// 200 left cannot cover the second order
	out, err = env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, st.cache.Len())
}

func TestSimRoundBundle(t *testing.T) {
	st := newSimTest(t, 2)
	single := st.addTx(1, st.tx(1, 0, payee, 21_000, 1))

	rb := signedBundle(t, st.keys[0], "fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a", st.env.Number,
		st.tx(0, 0, payee, 21_000, 1), st.tx(0, 1, payee, 21_000, 1))
	require.NoError(t, st.cache.AddBundle(rb, st.env.BaseFee))
	env := st.simEnv(nil)

	out, err := env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, out.Item.IsBundle())
	assert.Equal(t, uint64(42_000), out.GasUsed)
	assert.Len(t, out.Outcomes, 2)
	assert.Equal(t, uint64(2), env.State().GetNonce(st.addr(0)))

	block := NewBuiltBlock()
	block.Ingest(out)
	assert.Equal(t, 2, block.TxCount())
	assert.Equal(t, uint64(42_000), block.GasUsed())
	assert.Same(t, single, st.cache.ReadBest(1)[0].Item)
}

func TestSimRoundWrongBlockBundle(t *testing.T) {
	st := newSimTest(t, 1)
	rb := signedBundle(t, st.keys[0], "fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a", st.env.Number+1,
		st.tx(0, 0, payee, 21_000, 1))
	require.NoError(t, st.cache.AddBundle(rb, st.env.BaseFee))
	env := st.simEnv(nil)

	out, err := env.SimRound(30_000_000, 0, soon())
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Zero(t, st.cache.Len())
}

func TestBlockBuild(t *testing.T) {
	st := newSimTest(t, 3)
	var txs []*types.Transaction
	for i := 0; i < 3; i++ {
		tx := st.tx(i, 0, payee, 21_000, int64(i+1))
		st.addTx(i, tx)
		txs = append(txs, tx)
	}
	env := st.simEnv(nil)

	block, err := NewBlockBuild(env, time.Now().Add(200*time.Millisecond), 50_000, 0).Build(context.Background())
	require.NoError(t, err)

	// the gas budget fits two, the best paying first
	require.Equal(t, 2, block.TxCount())
	assert.Equal(t, txs[2].Hash(), block.Transactions()[0].Hash())
	assert.Equal(t, txs[1].Hash(), block.Transactions()[1].Hash())
	assert.Equal(t, uint64(42_000), block.GasUsed())
	assert.Equal(t, types.DeriveSha(block.Transactions(), trie.NewStackTrie(nil)), block.TxRoot())
	assert.Equal(t, crypto.Keccak256Hash(block.Encode()), block.ContentsHash())

	// the third ran out of gas budget and was dropped
	assert.Zero(t, st.cache.Len())
}

func TestBlockBuildStopsOnCancel(t *testing.T) {
	st := newSimTest(t, 1)
	env := st.simEnv(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	block, err := NewBlockBuild(env, time.Now().Add(time.Minute), 30_000_000, 0).Build(ctx)
	require.NoError(t, err)
	assert.True(t, block.IsEmpty())
	assert.Less(t, time.Since(start), time.Second)
}
