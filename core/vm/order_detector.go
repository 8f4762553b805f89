package vm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/signetlabs/signet-node/core/orders"
)

// OrderDetector observes execution through go-ethereum tracing hooks and
// captures the Order and Filled events emitted by the orders contract. Events
// from reverted call frames are discarded, so once the outermost call returns
// exactly the events of successful frames remain.
//
// A detector is reused across transactions: TakeAggregates drains it.
type OrderDetector struct {
	contract  common.Address
	chainID   uint64 // chain the fills are credited on
	fillsOnly bool

	orders  Framed[*orders.Order]
	filleds Framed[*orders.Filled]

	inner *tracing.Hooks
}

// NewOrderDetector returns a detector for the orders contract on chainID.
func NewOrderDetector(contract common.Address, chainID uint64) *OrderDetector {
	return &OrderDetector{contract: contract, chainID: chainID}
}

// NewFillDetector returns a detector that only captures Filled events. It is
// used on the host, where order creation is irrelevant.
func NewFillDetector(contract common.Address, chainID uint64) *OrderDetector {
	return &OrderDetector{contract: contract, chainID: chainID, fillsOnly: true}
}

// WithInner forwards every hook invocation to inner after the detector has
// handled it.
func (d *OrderDetector) WithInner(inner *tracing.Hooks) *OrderDetector {
	d.inner = inner
	return d
}

// ChainID returns the chain fills are credited on.
func (d *OrderDetector) ChainID() uint64 { return d.chainID }

// Hooks returns the tracing hooks to install on the EVM.
func (d *OrderDetector) Hooks() *tracing.Hooks {
	hooks := &tracing.Hooks{
		OnEnter: d.onEnter,
		OnExit:  d.onExit,
		OnLog:   d.onLog,
	}
	if d.inner != nil {
		hooks.OnBalanceChange = d.inner.OnBalanceChange
		hooks.OnNonceChange = d.inner.OnNonceChange
		hooks.OnCodeChange = d.inner.OnCodeChange
		hooks.OnStorageChange = d.inner.OnStorageChange
		hooks.OnOpcode = d.inner.OnOpcode
		hooks.OnFault = d.inner.OnFault
		hooks.OnGasChange = d.inner.OnGasChange
	}
	return hooks
}

func (d *OrderDetector) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	d.orders.EnterFrame()
	d.filleds.EnterFrame()
	if d.inner != nil && d.inner.OnEnter != nil {
		d.inner.OnEnter(depth, typ, from, to, input, gas, value)
	}
}

// onExit closes the current frame. A SELFDESTRUCT is reported by the EVM as
// an enter/exit pair without error, so it counts as a successful exit.
func (d *OrderDetector) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if reverted {
		d.orders.RevertFrame()
		d.filleds.RevertFrame()
	} else {
		d.orders.ExitFrame()
		d.filleds.ExitFrame()
	}
	if d.inner != nil && d.inner.OnExit != nil {
		d.inner.OnExit(depth, output, gasUsed, err, reverted)
	}
}

func (d *OrderDetector) onLog(lg *types.Log) {
	if d.inner != nil && d.inner.OnLog != nil {
		defer d.inner.OnLog(lg)
	}
	if lg.Address != d.contract {
		return
	}
	if !d.fillsOnly {
		if o, ok := orders.DecodeOrder(lg.Topics, lg.Data); ok {
			d.orders.Add(o)
			return
		}
	}
	if f, ok := orders.DecodeFilled(lg.Topics, lg.Data); ok {
		d.filleds.Add(f)
	}
}

// Orders returns the framed orders captured so far.
func (d *OrderDetector) Orders() *Framed[*orders.Order] { return &d.orders }

// Filleds returns the framed fills captured so far.
func (d *OrderDetector) Filleds() *Framed[*orders.Filled] { return &d.filleds }

// TakeAggregates drains the detector, folding captured orders into an
// AggregateOrders and captured fills into an AggregateFills credited on the
// detector's chain. The detector is ready for the next transaction.
func (d *OrderDetector) TakeAggregates() (*orders.AggregateOrders, *orders.AggregateFills) {
	agg := orders.NewAggregateOrders(d.orders.Events()...)
	fills := orders.NewAggregateFills()
	for _, f := range d.filleds.Events() {
		fills.AddFill(d.chainID, f)
	}
	d.Reset()
	return agg, fills
}

// Reset drops everything captured so far.
func (d *OrderDetector) Reset() {
	d.orders.Reset()
	d.filleds.Reset()
}
