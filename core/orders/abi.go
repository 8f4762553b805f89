package orders

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const outputTuple = `{"name":"outputs","type":"tuple[]","components":[
	{"name":"token","type":"address"},
	{"name":"amount","type":"uint256"},
	{"name":"recipient","type":"address"},
	{"name":"chainId","type":"uint32"}]}`

// OrdersABI is the event interface of the orders contract deployed on both
// the host and the rollup.
const OrdersABI = `[
{"type":"event","name":"Order","anonymous":false,"inputs":[
	{"name":"deadline","type":"uint256","indexed":false},
	{"name":"inputs","type":"tuple[]","indexed":false,"components":[
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"}]},
	` + outputTuple + `]},
{"type":"event","name":"Filled","anonymous":false,"inputs":[` + outputTuple + `]}
]`

var parsedABI = mustParseABI(OrdersABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	// OrderTopic is the topic0 of the Order event.
	OrderTopic = parsedABI.Events["Order"].ID
	// FilledTopic is the topic0 of the Filled event.
	FilledTopic = parsedABI.Events["Filled"].ID
)

// ABI returns the parsed orders contract interface.
func ABI() abi.ABI { return parsedABI }

// DecodeOrder decodes an Order event from raw log topics and data. It reports
// false when the log is not an Order event or is malformed.
func DecodeOrder(topics []common.Hash, data []byte) (*Order, bool) {
	if len(topics) == 0 || topics[0] != OrderTopic {
		return nil, false
	}
	var ev Order
	if err := parsedABI.UnpackIntoInterface(&ev, "Order", data); err != nil {
		return nil, false
	}
	return &ev, true
}

// DecodeFilled decodes a Filled event from raw log topics and data.
func DecodeFilled(topics []common.Hash, data []byte) (*Filled, bool) {
	if len(topics) == 0 || topics[0] != FilledTopic {
		return nil, false
	}
	var ev Filled
	if err := parsedABI.UnpackIntoInterface(&ev, "Filled", data); err != nil {
		return nil, false
	}
	return &ev, true
}

// OrderLog encodes o as an Order log emitted by addr.
func OrderLog(addr common.Address, o *Order) (*types.Log, error) {
	data, err := parsedABI.Events["Order"].Inputs.Pack(o.Deadline, o.Inputs, o.Outputs)
	if err != nil {
		return nil, err
	}
	return &types.Log{Address: addr, Topics: []common.Hash{OrderTopic}, Data: data}, nil
}

// FilledLog encodes f as a Filled log emitted by addr.
func FilledLog(addr common.Address, f *Filled) (*types.Log, error) {
	data, err := parsedABI.Events["Filled"].Inputs.Pack(f.Outputs)
	if err != nil {
		return nil, err
	}
	return &types.Log{Address: addr, Topics: []common.Hash{FilledTopic}, Data: data}, nil
}
