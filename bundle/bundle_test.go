package bundle

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/core/vm"
	"github.com/signetlabs/signet-node/internal/testutil"
	"github.com/signetlabs/signet-node/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelWarn, false)))
}

var (
	gwei     = big.NewInt(ethparams.GWei)
	funding  = new(big.Int).Mul(big.NewInt(100), big.NewInt(ethparams.Ether))
	payee    = common.HexToAddress("0xbeef")
	reverter = common.HexToAddress("0xdead")
	coinbase = params.TestDefaultRewardAddr
)

const (
	blockNumber = 5
	blockTime   = 1_000
)

// chainEnv is one chain's state and block, rollup or host.
type chainEnv struct {
	t       *testing.T
	config  *ethparams.ChainConfig
	statedb *state.StateDB
	env     *vm.BlockEnv
	signer  types.Signer
	keys    []*ecdsa.PrivateKey
}

func newChainEnv(t *testing.T, config *ethparams.ChainConfig, keys []*ecdsa.PrivateKey) *chainEnv {
	parent := &types.Header{
		Number:   big.NewInt(blockNumber - 1),
		GasLimit: 30_000_000,
		BaseFee:  big.NewInt(ethparams.InitialBaseFee),
	}
	e := &chainEnv{
		t:       t,
		config:  config,
		statedb: testutil.NewState(),
		env:     core.NextBlockEnv(config, parent, blockTime, coinbase),
		signer:  types.LatestSignerForChainID(config.ChainID),
		keys:    keys,
	}
	for _, key := range keys {
		e.statedb.AddBalance(crypto.PubkeyToAddress(key.PublicKey), uint256.MustFromBig(funding), tracing.BalanceChangeUnspecified)
	}
	e.statedb.SetCode(reverter, testutil.RevertCode())
	e.statedb.Finalise(true)
	return e
}

func newKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
	}
	return keys
}

func (e *chainEnv) tx(i int, nonce uint64, to common.Address, gas uint64) *types.Transaction {
	tx, err := types.SignNewTx(e.keys[i], e.signer, &types.DynamicFeeTx{
		ChainID:   e.config.ChainID,
		Nonce:     nonce,
		GasTipCap: gwei,
		GasFeeCap: new(big.Int).Mul(big.NewInt(100), gwei),
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
	})
	require.NoError(e.t, err)
	return tx
}

func (e *chainEnv) rollupExec() *core.TxExecutor {
	return core.NewTxExecutor(e.config, e.env, params.TestRollupOrders)
}

func (e *chainEnv) hostEnv() *HostEnv {
	return &HostEnv{Exec: core.NewHostTxExecutor(e.config, e.env, params.TestHostOrders), State: e.statedb}
}

func recoverBundle(t *testing.T, b *Bundle, rollup, host *chainEnv) *RecoveredBundle {
	var hostSigner types.Signer
	if host != nil {
		hostSigner = host.signer
	}
	rb, err := b.Recover(rollup.signer, hostSigner)
	require.NoError(t, err)
	return rb
}

func encode(t *testing.T, txs ...*types.Transaction) *Bundle {
	b, err := Encode(txs, nil, blockNumber)
	require.NoError(t, err)
	return b
}

func TestBundleJSON(t *testing.T) {
	const raw = `{
		"txs": ["0x01", "0x02"],
		"blockNumber": "0x5",
		"minTimestamp": 2,
		"maxTimestamp": 3,
		"revertingTxHashes": ["0x0404040404040404040404040404040404040404040404040404040404040404"],
		"replacementUuid": "fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a",
		"hostFills": [{
			"deadline": 19,
			"signature": "0xabcd",
			"outputs": [{"token": "0x4242424242424242424242424242424242424242", "amount": "0x11", "recipient": "0x6363636363636363636363636363636363636363", "chainId": "0x64"}]
		}]
	}`
	var b Bundle
	require.NoError(t, json.Unmarshal([]byte(raw), &b))

	assert.Len(t, b.Txs, 2)
	assert.Equal(t, uint64(5), uint64(b.BlockNumber))
	assert.True(t, b.ValidAt(2))
	assert.True(t, b.ValidAt(3))
	assert.False(t, b.ValidAt(4))
	require.Len(t, b.HostFills, 1)
	assert.Equal(t, big.NewInt(17), b.HostFills[0].Outputs[0].Amount)
	assert.Equal(t, uint32(100), b.HostFills[0].Outputs[0].ChainId)

	id, err := b.ReplacementID()
	require.NoError(t, err)
	assert.Equal(t, "fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a", id.String())

	b.ReplacementUUID = "not-a-uuid"
	_, err = b.ReplacementID()
	assert.ErrorIs(t, err, ErrInvalidReplacementUUID)
	b.ReplacementUUID = ""
	_, err = b.ReplacementID()
	assert.ErrorIs(t, err, ErrNoReplacementUUID)
}

func TestRecover(t *testing.T) {
	keys := newKeys(t, 2)
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), keys)
	host := newChainEnv(t, params.HostChainConfig(params.TestHostChainID), keys)

	tx0 := rollup.tx(0, 0, payee, 21_000)
	tx1 := rollup.tx(1, 3, payee, 50_000)
	b, err := Encode(types.Transactions{tx0, tx1}, types.Transactions{host.tx(0, 0, payee, 21_000)}, blockNumber)
	require.NoError(t, err)
	b.RevertingTxHashes = []common.Hash{tx1.Hash()}

	rb := recoverBundle(t, b, rollup, host)
	require.Len(t, rb.Txs(), 2)
	require.Len(t, rb.HostTxs(), 1)
	assert.Equal(t, crypto.PubkeyToAddress(keys[1].PublicKey), rb.Senders()[1])
	assert.True(t, rb.MayRevert(tx1.Hash()))
	assert.False(t, rb.MayRevert(tx0.Hash()))
	assert.Equal(t, crypto.Keccak256Hash(tx0.Hash().Bytes(), tx1.Hash().Bytes()), rb.Hash())

	reqs := rb.TxReqs()
	require.Len(t, reqs, 2)
	assert.Equal(t, uint64(3), reqs[1].Nonce)
	// gas limit times fee cap, value is zero
	assert.Equal(t, uint256.NewInt(50_000*100*ethparams.GWei), reqs[1].Balance)
	assert.Equal(t, crypto.PubkeyToAddress(keys[0].PublicKey), rb.HostTxReqs()[0].Signer)

	lo, hi := rb.TimestampRange()
	assert.Zero(t, lo)
	assert.Equal(t, ^uint64(0), hi)
}

func TestRecoverRejects(t *testing.T) {
	keys := newKeys(t, 1)
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), keys)

	_, err := (&Bundle{}).Recover(rollup.signer, nil)
	assert.ErrorIs(t, err, ErrBundleEmpty)

	blob, err := types.SignNewTx(keys[0], rollup.signer, &types.BlobTx{
		ChainID:    uint256.NewInt(params.TestRollupChainID),
		GasTipCap:  uint256.NewInt(1),
		GasFeeCap:  uint256.NewInt(1),
		Gas:        21_000,
		To:         payee,
		Value:      new(uint256.Int),
		BlobFeeCap: uint256.NewInt(1),
		BlobHashes: []common.Hash{{0x01}},
	})
	require.NoError(t, err)
	b := encode(t, rollup.tx(0, 0, payee, 21_000), blob)
	_, err = b.Recover(rollup.signer, nil)
	var rerr *RecoverError
	require.ErrorAs(t, err, &rerr)
	assert.False(t, rerr.Host)
	assert.Equal(t, 1, rerr.Index)
	assert.ErrorIs(t, err, ErrBlobTxUnsupported)

	b = encode(t, rollup.tx(0, 0, payee, 21_000))
	b.HostTxs = append(b.HostTxs, []byte{0xde, 0xad})
	_, err = b.Recover(rollup.signer, rollup.signer)
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Host)
	assert.Zero(t, rerr.Index)
}

func TestDriverScoresBeneficiary(t *testing.T) {
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), newKeys(t, 2))
	rb := recoverBundle(t, encode(t, rollup.tx(0, 0, payee, 21_000), rollup.tx(1, 0, payee, 21_000)), rollup, nil)

	d := NewDriver(rb, nil, params.TestHostChainID)
	require.NoError(t, d.Run(rollup.rollupExec(), rollup.statedb, nil))

	assert.Len(t, d.Outcomes(), 2)
	assert.Equal(t, uint64(42_000), d.TotalGasUsed())
	assert.Equal(t, uint256.NewInt(42_000*ethparams.GWei), d.BeneficiaryBalanceIncrease())
}

func TestDriverBlockChecks(t *testing.T) {
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), newKeys(t, 1))
	tx := rollup.tx(0, 0, payee, 21_000)
	late := uint64(blockTime + 1)

	tests := []struct {
		name   string
		mutate func(b *Bundle)
		want   error
	}{
		{"block number", func(b *Bundle) { b.BlockNumber++ }, ErrBlockNumberMismatch},
		{"too early", func(b *Bundle) { b.MinTimestamp = &late }, ErrTimestampOutOfRange},
		{"expired fill", func(b *Bundle) {
			b.HostFills = []*orders.SignedFill{{Deadline: blockTime - 1, Outputs: []orders.Output{{Token: params.TestHostUSDC, Amount: big.NewInt(1)}}}}
		}, ErrInvalidHostFill},
		{"host txs without host", func(b *Bundle) { b.HostTxs = b.Txs }, ErrNoHostEnv},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := encode(t, tx)
			tt.mutate(b)
			rb := recoverBundle(t, b, rollup, rollup)
			err := NewDriver(rb, nil, params.TestHostChainID).Run(rollup.rollupExec(), rollup.statedb.Copy(), nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDriverRevertingTx(t *testing.T) {
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), newKeys(t, 2))
	bad := rollup.tx(0, 0, reverter, 50_000)
	good := rollup.tx(1, 0, payee, 21_000)

	b := encode(t, bad, good)
	err := NewDriver(recoverBundle(t, b, rollup, nil), nil, params.TestHostChainID).Run(rollup.rollupExec(), rollup.statedb.Copy(), nil)
	assert.ErrorIs(t, err, ErrBundleReverted)

	b.RevertingTxHashes = []common.Hash{bad.Hash()}
	d := NewDriver(recoverBundle(t, b, rollup, nil), nil, params.TestHostChainID)
	require.NoError(t, d.Run(rollup.rollupExec(), rollup.statedb, nil))
	require.Len(t, d.Outcomes(), 2)
	assert.True(t, d.Outcomes()[0].Reverted)
	// the reverted transaction still consumed its nonce
	assert.Equal(t, uint64(1), rollup.statedb.GetNonce(crypto.PubkeyToAddress(rollup.keys[0].PublicKey)))
}

func TestDriverUnfilledOrder(t *testing.T) {
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), newKeys(t, 2))
	rollup.statedb.SetCode(params.TestRollupOrders,
		testutil.OrderEmitterCode(params.TestRollupOrders, params.TestHostUSDC, payee, 300, params.TestHostChainID))
	rollup.statedb.Finalise(true)

	order := rollup.tx(0, 0, params.TestRollupOrders, 200_000)
	send := rollup.tx(1, 0, payee, 21_000)

	b := encode(t, order, send)
	err := NewDriver(recoverBundle(t, b, rollup, nil), nil, params.TestHostChainID).Run(rollup.rollupExec(), rollup.statedb.Copy(), nil)
	require.ErrorIs(t, err, ErrBundleReverted)
	assert.True(t, orders.IsMarketError(err))

	// tolerated: the order is discarded and the rest of the bundle runs
	b.RevertingTxHashes = []common.Hash{order.Hash()}
	d := NewDriver(recoverBundle(t, b, rollup, nil), nil, params.TestHostChainID)
	require.NoError(t, d.Run(rollup.rollupExec(), rollup.statedb, nil))
	require.Len(t, d.Outcomes(), 1)
	assert.Equal(t, send.Hash(), d.Outcomes()[0].Tx.Hash())
	assert.Zero(t, rollup.statedb.GetNonce(crypto.PubkeyToAddress(rollup.keys[0].PublicKey)))
}

func TestDriverSignedHostFill(t *testing.T) {
	rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), newKeys(t, 1))
	rollup.statedb.SetCode(params.TestRollupOrders,
		testutil.OrderEmitterCode(params.TestRollupOrders, params.TestHostUSDC, payee, 300, params.TestHostChainID))
	rollup.statedb.Finalise(true)

	b := encode(t, rollup.tx(0, 0, params.TestRollupOrders, 200_000))
	b.HostFills = []*orders.SignedFill{{
		Deadline: blockTime,
		Outputs:  []orders.Output{{Token: params.TestHostUSDC, Amount: big.NewInt(500), Recipient: payee}},
	}}
	ledger := orders.NewAggregateFills()
	d := NewDriver(recoverBundle(t, b, rollup, nil), ledger, params.TestHostChainID)
	require.NoError(t, d.Run(rollup.rollupExec(), rollup.statedb, nil))

	key := orders.AssetKey{ChainID: params.TestHostChainID, Token: params.TestHostUSDC}
	left := d.Fills().Filled(key, payee)
	assert.Equal(t, uint64(200), left.Uint64())
	// the input ledger is not touched
	assert.Zero(t, ledger.Len())
}

func TestDriverHostTransactions(t *testing.T) {
	tests := []struct {
		filled int64
		ok     bool
	}{
		{300, true},
		{299, false},
	}
	for _, tt := range tests {
		keys := newKeys(t, 1)
		rollup := newChainEnv(t, params.RollupChainConfig(params.TestRollupChainID), keys)
		host := newChainEnv(t, params.HostChainConfig(params.TestHostChainID), keys)
		rollup.statedb.SetCode(params.TestRollupOrders,
			testutil.OrderEmitterCode(params.TestRollupOrders, params.TestHostUSDC, payee, 300, params.TestHostChainID))
		rollup.statedb.Finalise(true)
		host.statedb.SetCode(params.TestHostOrders,
			testutil.FilledEmitterCode(params.TestHostOrders, params.TestHostUSDC, payee, tt.filled))
		host.statedb.Finalise(true)

		b, err := Encode(types.Transactions{rollup.tx(0, 0, params.TestRollupOrders, 200_000)},
			types.Transactions{host.tx(0, 0, params.TestHostOrders, 200_000)}, blockNumber)
		require.NoError(t, err)

		d := NewDriver(recoverBundle(t, b, rollup, host), nil, params.TestHostChainID)
		err = d.Run(rollup.rollupExec(), rollup.statedb, host.hostEnv())
		if !tt.ok {
			assert.ErrorIs(t, err, ErrBundleReverted, "filled %d", tt.filled)
			continue
		}
		require.NoError(t, err)
		assert.NotZero(t, d.HostGasUsed())
		key := orders.AssetKey{ChainID: params.TestHostChainID, Token: params.TestHostUSDC}
		left := d.Fills().Filled(key, payee)
		assert.True(t, left.IsZero())
	}
}
