package extract

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// The functions below build host logs. They are used to assemble host blocks
// for local testing and simulation.

func chainTopic(chainID uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(chainID))
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a[:])
}

func mustPack(name string, args ...interface{}) []byte {
	data, err := hostABI.Events[name].Inputs.NonIndexed().Pack(args...)
	if err != nil {
		panic(err)
	}
	return data
}

// EnterLog builds an Enter log emitted by passage.
func EnterLog(passage common.Address, chainID uint64, recipient common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: passage,
		Topics:  []common.Hash{EnterTopic, chainTopic(chainID), addrTopic(recipient)},
		Data:    mustPack("Enter", amount),
	}
}

// EnterTokenLog builds an EnterToken log emitted by passage.
func EnterTokenLog(passage common.Address, chainID uint64, recipient, token common.Address, amount *big.Int) *types.Log {
	return &types.Log{
		Address: passage,
		Topics:  []common.Hash{EnterTokenTopic, chainTopic(chainID), addrTopic(recipient), addrTopic(token)},
		Data:    mustPack("EnterToken", amount),
	}
}

// TransactLog builds a Transact log emitted by transactor.
func TransactLog(transactor common.Address, chainID uint64, t *Transact) *types.Log {
	return &types.Log{
		Address: transactor,
		Topics:  []common.Hash{TransactTopic, chainTopic(chainID), addrTopic(t.Sender), addrTopic(t.To)},
		Data:    mustPack("Transact", t.Data, t.Value, t.Gas, t.MaxFeePerGas),
	}
}

// BlockSubmittedLog builds a BlockSubmitted log emitted by zenith.
func BlockSubmittedLog(zenith common.Address, chainID uint64, b *BlockSubmitted) *types.Log {
	return &types.Log{
		Address: zenith,
		Topics:  []common.Hash{BlockSubmittedTopic, addrTopic(b.Sequencer), chainTopic(chainID)},
		Data:    mustPack("BlockSubmitted", b.GasLimit, b.RewardAddress, [32]byte(b.BlockDataHash)),
	}
}
