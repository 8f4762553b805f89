package orders

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AggregateOrders folds one or more orders into the outputs that must have
// been filled and the inputs the filler is owed in return.
type AggregateOrders struct {
	// Outputs maps (chain, token) -> recipient -> amount.
	Outputs map[AssetKey]map[common.Address]uint256.Int
	// Inputs maps token -> amount. Inputs are always on the rollup.
	Inputs map[common.Address]uint256.Int
}

// NewAggregateOrders aggregates the given orders.
func NewAggregateOrders(orders ...*Order) *AggregateOrders {
	agg := &AggregateOrders{
		Outputs: make(map[AssetKey]map[common.Address]uint256.Int),
		Inputs:  make(map[common.Address]uint256.Int),
	}
	agg.Extend(orders...)
	return agg
}

// IsEmpty reports whether no order has contributed outputs or inputs.
func (agg *AggregateOrders) IsEmpty() bool {
	return len(agg.Outputs) == 0 && len(agg.Inputs) == 0
}

// Ingest adds a single order to the aggregate.
func (agg *AggregateOrders) Ingest(o *Order) {
	for i := range o.Outputs {
		out := &o.Outputs[i]
		agg.ingestOutput(uint64(out.ChainId), out.Token, out.Recipient, amount(out.Amount))
	}
	for i := range o.Inputs {
		in := &o.Inputs[i]
		agg.ingestInput(in.Token, amount(in.Amount))
	}
}

// Extend ingests every order in turn.
func (agg *AggregateOrders) Extend(orders ...*Order) {
	for _, o := range orders {
		agg.Ingest(o)
	}
}

func (agg *AggregateOrders) ingestOutput(chainID uint64, token, recipient common.Address, v uint256.Int) {
	if agg.Outputs == nil {
		agg.Outputs = make(map[AssetKey]map[common.Address]uint256.Int)
	}
	key := AssetKey{ChainID: chainID, Token: token}
	m, ok := agg.Outputs[key]
	if !ok {
		m = make(map[common.Address]uint256.Int)
		agg.Outputs[key] = m
	}
	cur := m[recipient]
	m[recipient] = saturatingAdd(&cur, &v)
}

func (agg *AggregateOrders) ingestInput(token common.Address, v uint256.Int) {
	if agg.Inputs == nil {
		agg.Inputs = make(map[common.Address]uint256.Int)
	}
	cur := agg.Inputs[token]
	agg.Inputs[token] = saturatingAdd(&cur, &v)
}

// TargetChainIDs returns the distinct chains the outputs must be delivered
// on, in ascending order.
func (agg *AggregateOrders) TargetChainIDs() []uint64 {
	seen := make(map[uint64]struct{})
	var ids []uint64
	for key := range agg.Outputs {
		if _, ok := seen[key.ChainID]; !ok {
			seen[key.ChainID] = struct{}{}
			ids = append(ids, key.ChainID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// OutputsFor returns the aggregated outputs targeting chain target, marked
// with the chain id of the rollup the orders originated on. All orders in the
// aggregate must come from the same rollup. The result is sorted by token
// then recipient.
func (agg *AggregateOrders) OutputsFor(target, rollupChainID uint64) []Output {
	var out []Output
	for key, recipients := range agg.Outputs {
		if key.ChainID != target {
			continue
		}
		for r, v := range recipients {
			out = append(out, Output{
				Token:     key.Token,
				Amount:    v.ToBig(),
				Recipient: r,
				ChainId:   uint32(rollupChainID),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Token[:], out[j].Token[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Recipient[:], out[j].Recipient[:]) < 0
	})
	return out
}
