package vm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/internal/testutil"
	"github.com/signetlabs/signet-node/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ordersAddr = params.TestRollupOrders
	callerAddr = common.HexToAddress("0xca11e7")
	sender     = common.HexToAddress("0x5e1d")
	recipient  = common.HexToAddress("0xbeef")
	token      = common.HexToAddress("0x70ce")
)

func filledData(t *testing.T, amount int64) (common.Hash, []byte) {
	lg, err := orders.FilledLog(ordersAddr, &orders.Filled{Outputs: []orders.Output{
		{Token: token, Amount: big.NewInt(amount), Recipient: recipient, ChainId: 15},
	}})
	require.NoError(t, err)
	return lg.Topics[0], lg.Data
}

func orderData(t *testing.T, amount int64) (common.Hash, []byte) {
	lg, err := orders.OrderLog(ordersAddr, &orders.Order{
		Deadline: big.NewInt(0),
		Outputs:  []orders.Output{{Token: token, Amount: big.NewInt(amount), Recipient: recipient, ChainId: 15}},
	})
	require.NoError(t, err)
	return lg.Topics[0], lg.Data
}

func run(t *testing.T, sdb *state.StateDB, d *OrderDetector, to common.Address) *core.ExecutionResult {
	env := &BlockEnv{Number: 1, Timestamp: 1, GasLimit: 30_000_000, BaseFee: new(big.Int)}
	evm := NewEVM(env, sdb, params.RollupChainConfig(15), Config{Hooks: d.Hooks()})
	msg := &core.Message{
		From:             sender,
		To:               &to,
		Value:            new(big.Int),
		GasLimit:         1_000_000,
		GasPrice:         new(big.Int),
		GasFeeCap:        new(big.Int),
		GasTipCap:        new(big.Int),
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}
	evm.SetTxContext(core.NewEVMTxContext(msg))
	res, err := core.ApplyMessage(evm, msg, new(core.GasPool).AddGas(msg.GasLimit))
	require.NoError(t, err)
	return res
}

func TestDetectorCapturesFill(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := filledData(t, 300)
	sdb.SetCode(ordersAddr, testutil.EmitterCode(topic, data, false))

	d := NewOrderDetector(ordersAddr, 15)
	res := run(t, sdb, d, ordersAddr)
	require.False(t, res.Failed())
	assert.True(t, d.Filleds().IsComplete())

	agg, fills := d.TakeAggregates()
	assert.True(t, agg.IsEmpty())
	assert.Equal(t, *uint256.NewInt(300), fills.Filled(orders.AssetKey{ChainID: 15, Token: token}, recipient))

	// drained
	assert.True(t, d.Filleds().IsEmpty())
}

func TestDetectorDropsRevertedSubcall(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := orderData(t, 10)
	sdb.SetCode(ordersAddr, testutil.EmitterCode(topic, data, true))
	sdb.SetCode(callerAddr, testutil.CallerCode([]common.Address{ordersAddr}, false))

	d := NewOrderDetector(ordersAddr, 15)
	res := run(t, sdb, d, callerAddr)
	require.False(t, res.Failed(), "outer call succeeds")

	agg, fills := d.TakeAggregates()
	assert.True(t, agg.IsEmpty())
	assert.Equal(t, 0, fills.Len())
}

func TestDetectorDropsRevertedOuterCall(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := orderData(t, 10)
	sdb.SetCode(ordersAddr, testutil.EmitterCode(topic, data, false))
	sdb.SetCode(callerAddr, testutil.CallerCode([]common.Address{ordersAddr}, true))

	d := NewOrderDetector(ordersAddr, 15)
	res := run(t, sdb, d, callerAddr)
	require.True(t, res.Failed())

	agg, _ := d.TakeAggregates()
	assert.True(t, agg.IsEmpty())
}

func TestDetectorKeepsSuccessfulSubcall(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := orderData(t, 10)
	sdb.SetCode(ordersAddr, testutil.EmitterCode(topic, data, false))
	sdb.SetCode(callerAddr, testutil.CallerCode([]common.Address{ordersAddr, ordersAddr}, false))

	d := NewOrderDetector(ordersAddr, 15)
	res := run(t, sdb, d, callerAddr)
	require.False(t, res.Failed())

	agg, _ := d.TakeAggregates()
	assert.Equal(t, *uint256.NewInt(20), agg.Outputs[orders.AssetKey{ChainID: 15, Token: token}][recipient])
}

func TestFillDetectorIgnoresOrders(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := orderData(t, 10)
	sdb.SetCode(ordersAddr, testutil.EmitterCode(topic, data, false))

	d := NewFillDetector(ordersAddr, 1)
	run(t, sdb, d, ordersAddr)
	assert.True(t, d.Orders().IsEmpty())
}

func TestDetectorIgnoresOtherContracts(t *testing.T) {
	sdb := testutil.NewState()
	topic, data := filledData(t, 1)
	other := common.HexToAddress("0x0123")
	sdb.SetCode(other, testutil.EmitterCode(topic, data, false))

	d := NewOrderDetector(ordersAddr, 15)
	run(t, sdb, d, other)
	assert.True(t, d.Filleds().IsEmpty())
}
