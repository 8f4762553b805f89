// Package testutil assembles EVM bytecode and state for tests.
package testutil

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
)

// NewState returns an empty in-memory state.
func NewState() *state.StateDB {
	sdb, err := state.New(types.EmptyRootHash, state.NewDatabaseForTesting())
	if err != nil {
		panic(err)
	}
	return sdb
}

func op(o gethvm.OpCode) byte { return byte(o) }

func push2(v int) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return []byte{op(gethvm.PUSH2), b[0], b[1]}
}

func tail(revert bool) []byte {
	if revert {
		return []byte{op(gethvm.PUSH1), 0, op(gethvm.PUSH1), 0, op(gethvm.REVERT)}
	}
	return []byte{op(gethvm.STOP)}
}

// EmitterCode returns code that emits a LOG1 with topic and data, then
// either stops or reverts.
func EmitterCode(topic common.Hash, data []byte, revert bool) []byte {
	// Prefix length is fixed: 3+3+2+1 for CODECOPY, 33+3+2+1 for LOG1.
	const prefix = 9 + 39
	end := tail(revert)
	code := make([]byte, 0, prefix+len(end)+len(data))
	code = append(code, push2(len(data))...)
	code = append(code, push2(prefix+len(end))...)
	code = append(code, op(gethvm.PUSH1), 0, op(gethvm.CODECOPY))
	code = append(code, op(gethvm.PUSH32))
	code = append(code, topic[:]...)
	code = append(code, push2(len(data))...)
	code = append(code, op(gethvm.PUSH1), 0, op(gethvm.LOG1))
	code = append(code, end...)
	return append(code, data...)
}

// CallerCode returns code that calls each target in turn with no value and
// no calldata, ignores the results, then stops or reverts.
func CallerCode(targets []common.Address, revert bool) []byte {
	var code []byte
	for _, target := range targets {
		for i := 0; i < 5; i++ {
			code = append(code, op(gethvm.PUSH1), 0)
		}
		code = append(code, op(gethvm.PUSH20))
		code = append(code, target[:]...)
		code = append(code, op(gethvm.GAS), op(gethvm.CALL), op(gethvm.POP))
	}
	return append(code, tail(revert)...)
}

// MintableTokenCode returns code for a minimal token whose every call is
// treated as mint(address to, uint256 amount). Balances are stored at the
// slot keyed by the recipient address.
func MintableTokenCode() []byte {
	return []byte{
		op(gethvm.PUSH1), 0x04, op(gethvm.CALLDATALOAD),
		op(gethvm.DUP1), op(gethvm.SLOAD),
		op(gethvm.PUSH1), 0x24, op(gethvm.CALLDATALOAD),
		op(gethvm.ADD),
		op(gethvm.SWAP1),
		op(gethvm.SSTORE),
		op(gethvm.STOP),
	}
}

// TokenBalance reads a balance written by MintableTokenCode.
func TokenBalance(sdb *state.StateDB, token, holder common.Address) common.Hash {
	return sdb.GetState(token, common.BytesToHash(holder[:]))
}

// RevertCode always reverts.
func RevertCode() []byte { return tail(true) }
