package orders

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AggregateFills is a running ledger of delivered outputs, keyed by asset and
// recipient. Fills are added when a Filled event is observed and removed when
// an Order consumes them.
//
// Additions saturate at the numeric maximum. Every removal is either checked
// in advance (checked_* methods) or performed as part of a larger operation
// whose sufficiency was validated as a whole (unchecked_* methods). A ledger
// on which an unchecked operation returned an error must be discarded.
//
// AggregateFills is not safe for concurrent use.
type AggregateFills struct {
	fills map[AssetKey]map[common.Address]uint256.Int
}

// NewAggregateFills returns an empty ledger.
func NewAggregateFills() *AggregateFills {
	return &AggregateFills{fills: make(map[AssetKey]map[common.Address]uint256.Int)}
}

// Copy returns a deep copy of the ledger.
func (a *AggregateFills) Copy() *AggregateFills {
	cpy := &AggregateFills{fills: make(map[AssetKey]map[common.Address]uint256.Int, len(a.fills))}
	for key, recipients := range a.fills {
		m := make(map[common.Address]uint256.Int, len(recipients))
		for r, v := range recipients {
			m[r] = v
		}
		cpy.fills[key] = m
	}
	return cpy
}

// Len returns the number of asset keys in the ledger.
func (a *AggregateFills) Len() int { return len(a.fills) }

// Fills returns the underlying mapping. Callers must not modify it.
func (a *AggregateFills) Fills() map[AssetKey]map[common.Address]uint256.Int {
	return a.fills
}

// Filled returns the balance credited to recipient for the given asset.
func (a *AggregateFills) Filled(key AssetKey, recipient common.Address) uint256.Int {
	return a.fills[key][recipient]
}

// CheckFilled verifies that recipient has been credited at least amount.
func (a *AggregateFills) CheckFilled(key AssetKey, recipient common.Address, amount *uint256.Int) error {
	filled := a.Filled(key, recipient)
	if filled.Lt(amount) {
		return insufficient(key, recipient, amount)
	}
	return nil
}

func (a *AggregateFills) recipients(key AssetKey) map[common.Address]uint256.Int {
	if a.fills == nil {
		a.fills = make(map[AssetKey]map[common.Address]uint256.Int)
	}
	m, ok := a.fills[key]
	if !ok {
		m = make(map[common.Address]uint256.Int)
		a.fills[key] = m
	}
	return m
}

// AddRawFill credits amount of token on chainID to recipient.
func (a *AggregateFills) AddRawFill(chainID uint64, token, recipient common.Address, amount *uint256.Int) {
	m := a.recipients(AssetKey{ChainID: chainID, Token: token})
	cur := m[recipient]
	m[recipient] = saturatingAdd(&cur, amount)
}

func (a *AggregateFills) addOutput(chainID uint64, o *Output) {
	amt := amount(o.Amount)
	a.AddRawFill(chainID, o.Token, o.Recipient, &amt)
}

// AddFill ingests every output of a Filled event. chainID is the chain that
// emitted the event, which is where the assets were delivered.
func (a *AggregateFills) AddFill(chainID uint64, fill *Filled) {
	for i := range fill.Outputs {
		a.addOutput(chainID, &fill.Outputs[i])
	}
}

// AddSignedFill ingests every output of a signed fill delivered on chainID.
func (a *AggregateFills) AddSignedFill(chainID uint64, fill *SignedFill) {
	for i := range fill.Outputs {
		a.addOutput(chainID, &fill.Outputs[i])
	}
}

// Absorb adds every balance of other to the ledger.
func (a *AggregateFills) Absorb(other *AggregateFills) {
	for key, recipients := range other.fills {
		m := a.recipients(key)
		for r, v := range recipients {
			cur := m[r]
			m[r] = saturatingAdd(&cur, &v)
		}
	}
}

// UncheckedUnabsorb subtracts every balance of other from the ledger. It
// fails with InsufficientBalance when a subtraction would go negative, in
// which case keys visited earlier have already been reverted.
func (a *AggregateFills) UncheckedUnabsorb(other *AggregateFills) error {
	for key, recipients := range other.fills {
		m, ok := a.fills[key]
		if !ok {
			continue
		}
		for r, v := range recipients {
			cur, ok := m[r]
			if !ok {
				continue
			}
			if cur.Lt(&v) {
				return insufficient(key, r, &v)
			}
			m[r] = *new(uint256.Int).Sub(&cur, &v)
		}
	}
	return nil
}

// CheckAggregate verifies that the ledger covers every output of agg. It
// does not modify the ledger.
func (a *AggregateFills) CheckAggregate(agg *AggregateOrders) error {
	for key, recipients := range agg.Outputs {
		if _, ok := a.fills[key]; !ok {
			return missingAsset(key)
		}
		for r, v := range recipients {
			if err := a.CheckFilled(key, r, &v); err != nil {
				return err
			}
		}
	}
	return nil
}

// UncheckedRemoveAggregate subtracts every output of agg using saturating
// arithmetic, without checking sufficiency first. An asset key that was never
// credited yields MissingAsset unless every amount required for it is zero.
func (a *AggregateFills) UncheckedRemoveAggregate(agg *AggregateOrders) error {
	for key, recipients := range agg.Outputs {
		m, ok := a.fills[key]
		if !ok {
			if allZero(recipients) {
				continue
			}
			return missingAsset(key)
		}
		for r, v := range recipients {
			cur, ok := m[r]
			if !ok {
				continue
			}
			m[r] = saturatingSub(&cur, &v)
		}
	}
	return nil
}

// CheckedRemoveAggregate checks agg against the ledger and, only if that
// succeeds, subtracts it. On error the ledger is unchanged.
func (a *AggregateFills) CheckedRemoveAggregate(agg *AggregateOrders) error {
	if err := a.CheckAggregate(agg); err != nil {
		return err
	}
	return a.UncheckedRemoveAggregate(agg)
}

// CheckOrder verifies that the ledger covers a single order.
func (a *AggregateFills) CheckOrder(o *Order) error {
	return a.CheckAggregate(NewAggregateOrders(o))
}

// CheckedRemoveOrder removes a single order after checking it.
func (a *AggregateFills) CheckedRemoveOrder(o *Order) error {
	return a.CheckedRemoveAggregate(NewAggregateOrders(o))
}

// UncheckedRemoveOrder removes a single order without checking it.
func (a *AggregateFills) UncheckedRemoveOrder(o *Order) error {
	return a.UncheckedRemoveAggregate(NewAggregateOrders(o))
}

// CheckRuTxEvents verifies that the ledger combined with the fills produced
// by a transaction covers the orders produced by that same transaction.
func (a *AggregateFills) CheckRuTxEvents(fills *AggregateFills, orders *AggregateOrders) error {
	return combined{ledger: a, extra: fills}.checkAggregate(orders)
}

// CheckedRemoveRuTxEvents ingests the fills and orders produced by a single
// transaction atomically: fills are processed before orders, and if the
// combined check fails the ledger is not mutated.
func (a *AggregateFills) CheckedRemoveRuTxEvents(fills *AggregateFills, orders *AggregateOrders) error {
	if err := a.CheckRuTxEvents(fills, orders); err != nil {
		return err
	}
	return a.UncheckedRemoveRuTxEvents(fills, orders)
}

// UncheckedRemoveRuTxEvents absorbs fills then removes orders without a
// prior check. On error the ledger may have been mutated.
func (a *AggregateFills) UncheckedRemoveRuTxEvents(fills *AggregateFills, orders *AggregateOrders) error {
	a.Absorb(fills)
	return a.UncheckedRemoveAggregate(orders)
}

// combined is a read-only view of a ledger plus extra fills.
type combined struct {
	ledger *AggregateFills
	extra  *AggregateFills
}

func (c combined) balance(key AssetKey, recipient common.Address) uint256.Int {
	l, e := c.ledger.Filled(key, recipient), c.extra.Filled(key, recipient)
	return saturatingAdd(&l, &e)
}

func (c combined) checkAggregate(agg *AggregateOrders) error {
	for key, recipients := range agg.Outputs {
		for r, v := range recipients {
			bal := c.balance(key, r)
			if bal.Lt(&v) {
				return insufficient(key, r, &v)
			}
		}
	}
	return nil
}

func saturatingAdd(x, y *uint256.Int) uint256.Int {
	var z uint256.Int
	if _, overflow := z.AddOverflow(x, y); overflow {
		z.SetAllOne()
	}
	return z
}

func saturatingSub(x, y *uint256.Int) uint256.Int {
	var z uint256.Int
	if x.Lt(y) {
		return z
	}
	z.Sub(x, y)
	return z
}

func allZero(m map[common.Address]uint256.Int) bool {
	for _, v := range m {
		if !v.IsZero() {
			return false
		}
	}
	return true
}
