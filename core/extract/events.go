package extract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/signetlabs/signet-node/core/orders"
)

// Enter is a native-asset deposit into the rollup.
type Enter struct {
	RollupChainID   *big.Int
	RollupRecipient common.Address
	Amount          *big.Int
}

// EnterToken is a deposit of a permissioned host token.
type EnterToken struct {
	RollupChainID   *big.Int
	RollupRecipient common.Address
	Token           common.Address
	Amount          *big.Int
}

// Transact is a host-initiated rollup call on behalf of Sender.
type Transact struct {
	RollupChainID *big.Int
	Sender        common.Address
	To            common.Address
	Data          []byte
	Value         *big.Int
	Gas           *big.Int
	MaxFeePerGas  *big.Int
}

// BlockSubmitted commits a sequencer to a rollup block.
type BlockSubmitted struct {
	Sequencer     common.Address
	RollupChainID *big.Int
	GasLimit      *big.Int
	RewardAddress common.Address
	BlockDataHash common.Hash
}

// ExtractedEvent is a decoded host event with its location in the host block.
type ExtractedEvent[T any] struct {
	TxHash   common.Hash
	LogIndex uint32 // index within the transaction's receipt logs
	Event    T
}

func chainIDMatches(topic common.Hash, chainID uint64) bool {
	id := new(big.Int).SetBytes(topic[:])
	return id.IsUint64() && id.Uint64() == chainID
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic[:])
}

func unpack(name string, data []byte) ([]interface{}, bool) {
	vals, err := hostABI.Events[name].Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, false
	}
	return vals, true
}

// DecodeEnter decodes an Enter log destined for rollupChainID.
func DecodeEnter(lg *types.Log, rollupChainID uint64) (*Enter, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != EnterTopic || !chainIDMatches(lg.Topics[1], rollupChainID) {
		return nil, false
	}
	vals, ok := unpack("Enter", lg.Data)
	if !ok {
		return nil, false
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}
	return &Enter{
		RollupChainID:   new(big.Int).SetBytes(lg.Topics[1][:]),
		RollupRecipient: topicAddress(lg.Topics[2]),
		Amount:          amount,
	}, true
}

// DecodeEnterToken decodes an EnterToken log destined for rollupChainID.
func DecodeEnterToken(lg *types.Log, rollupChainID uint64) (*EnterToken, bool) {
	if len(lg.Topics) != 4 || lg.Topics[0] != EnterTokenTopic || !chainIDMatches(lg.Topics[1], rollupChainID) {
		return nil, false
	}
	vals, ok := unpack("EnterToken", lg.Data)
	if !ok {
		return nil, false
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, false
	}
	return &EnterToken{
		RollupChainID:   new(big.Int).SetBytes(lg.Topics[1][:]),
		RollupRecipient: topicAddress(lg.Topics[2]),
		Token:           topicAddress(lg.Topics[3]),
		Amount:          amount,
	}, true
}

// DecodeTransact decodes a Transact log destined for rollupChainID.
func DecodeTransact(lg *types.Log, rollupChainID uint64) (*Transact, bool) {
	if len(lg.Topics) != 4 || lg.Topics[0] != TransactTopic || !chainIDMatches(lg.Topics[1], rollupChainID) {
		return nil, false
	}
	vals, ok := unpack("Transact", lg.Data)
	if !ok || len(vals) != 4 {
		return nil, false
	}
	data, ok1 := vals[0].([]byte)
	value, ok2 := vals[1].(*big.Int)
	gas, ok3 := vals[2].(*big.Int)
	maxFee, ok4 := vals[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, false
	}
	return &Transact{
		RollupChainID: new(big.Int).SetBytes(lg.Topics[1][:]),
		Sender:        topicAddress(lg.Topics[2]),
		To:            topicAddress(lg.Topics[3]),
		Data:          data,
		Value:         value,
		Gas:           gas,
		MaxFeePerGas:  maxFee,
	}, true
}

// DecodeBlockSubmitted decodes a BlockSubmitted log for rollupChainID.
func DecodeBlockSubmitted(lg *types.Log, rollupChainID uint64) (*BlockSubmitted, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != BlockSubmittedTopic || !chainIDMatches(lg.Topics[2], rollupChainID) {
		return nil, false
	}
	vals, ok := unpack("BlockSubmitted", lg.Data)
	if !ok || len(vals) != 3 {
		return nil, false
	}
	gasLimit, ok1 := vals[0].(*big.Int)
	reward, ok2 := vals[1].(common.Address)
	dataHash, ok3 := vals[2].([32]byte)
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	return &BlockSubmitted{
		Sequencer:     topicAddress(lg.Topics[1]),
		RollupChainID: new(big.Int).SetBytes(lg.Topics[2][:]),
		GasLimit:      gasLimit,
		RewardAddress: reward,
		BlockDataHash: dataHash,
	}, true
}

// DecodeHostFilled decodes a Filled log from the host orders contract,
// keeping only outputs that settle orders from rollupChainID.
func DecodeHostFilled(lg *types.Log, rollupChainID uint64) (*orders.Filled, bool) {
	fill, ok := orders.DecodeFilled(lg.Topics, lg.Data)
	if !ok {
		return nil, false
	}
	kept := fill.Outputs[:0]
	for _, o := range fill.Outputs {
		if uint64(o.ChainId) == rollupChainID {
			kept = append(kept, o)
		}
	}
	fill.Outputs = kept
	return fill, true
}
