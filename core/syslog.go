package core

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/signetlabs/signet-node/params"
)

// SysLogABI describes the logs the minter address emits for every system
// unit. Indexers use them to tie rollup receipts back to host events.
const SysLogABI = `[
{"type":"event","name":"MintNative","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"logIndex","type":"uint64","indexed":true},
	{"name":"recipient","type":"address","indexed":true},
	{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"MintToken","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"logIndex","type":"uint64","indexed":true},
	{"name":"recipient","type":"address","indexed":true},
	{"name":"hostToken","type":"address","indexed":false},
	{"name":"amount","type":"uint256","indexed":false}]},
{"type":"event","name":"Transact","anonymous":false,"inputs":[
	{"name":"txHash","type":"bytes32","indexed":true},
	{"name":"logIndex","type":"uint64","indexed":true},
	{"name":"sender","type":"address","indexed":true},
	{"name":"value","type":"uint256","indexed":false},
	{"name":"gas","type":"uint256","indexed":false},
	{"name":"maxFeePerGas","type":"uint256","indexed":false}]}
]`

var sysLogABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(SysLogABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

var (
	MintNativeTopic = sysLogABI.Events["MintNative"].ID
	MintTokenTopic  = sysLogABI.Events["MintToken"].ID
	TransactTopic   = sysLogABI.Events["Transact"].ID
)

// mintSelector is the selector of mint(address,uint256).
var mintSelector = []byte{0x40, 0xc1, 0x0f, 0x19}

func sysLog(event string, topics []common.Hash, args ...interface{}) *types.Log {
	data, err := sysLogABI.Events[event].Inputs.NonIndexed().Pack(args...)
	if err != nil {
		panic(err)
	}
	return &types.Log{
		Address: params.MinterAddress,
		Topics:  append([]common.Hash{sysLogABI.Events[event].ID}, topics...),
		Data:    data,
	}
}

func logIndexTopic(i uint32) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(uint64(i)))
}

// MintNativeLog is emitted when the native asset is minted to recipient.
func MintNativeLog(txHash common.Hash, logIndex uint32, recipient common.Address, amount *big.Int) *types.Log {
	return sysLog("MintNative",
		[]common.Hash{txHash, logIndexTopic(logIndex), common.BytesToHash(recipient[:])},
		amount)
}

// MintTokenLog is emitted when a rollup token is minted for a host deposit.
func MintTokenLog(txHash common.Hash, logIndex uint32, recipient, hostToken common.Address, amount *big.Int) *types.Log {
	return sysLog("MintToken",
		[]common.Hash{txHash, logIndexTopic(logIndex), common.BytesToHash(recipient[:])},
		hostToken, amount)
}

// TransactLog is emitted for every host-initiated rollup call.
func TransactLog(txHash common.Hash, logIndex uint32, sender common.Address, value, gas, maxFeePerGas *big.Int) *types.Log {
	return sysLog("Transact",
		[]common.Hash{txHash, logIndexTopic(logIndex), common.BytesToHash(sender[:])},
		value, gas, maxFeePerGas)
}

// mintCall encodes mint(to, amount).
func mintCall(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, mintSelector...)
	data = append(data, common.LeftPadBytes(to[:], 32)...)
	return append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
}
