package tracing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/log"
)

// Rollup specific balance change reasons. They are numbered from 0xe0 to stay
// clear of the reasons defined by go-ethereum.
const (
	BalanceIncreaseEnter tracing.BalanceChangeReason = 0xe0 + iota
	BalanceIncreaseEnterUSD
	BalanceDecreaseUnusedGas
	BalanceDecreasePassageClear
	BalanceIncreaseBaseFee
)

// Rollup specific nonce change reasons.
const (
	NonceChangeMinter tracing.NonceChangeReason = 0xe0 + iota
)

// BalanceReason returns a human-readable string for r, covering both the
// rollup reasons and the common go-ethereum ones.
func BalanceReason(r tracing.BalanceChangeReason) string {
	switch r {
	case BalanceIncreaseEnter:
		return "enter"
	case BalanceIncreaseEnterUSD:
		return "enter_usd"
	case BalanceDecreaseUnusedGas:
		return "unused_gas"
	case BalanceDecreasePassageClear:
		return "passage_clear"
	case BalanceIncreaseBaseFee:
		return "base_fee"
	case tracing.BalanceChangeTransfer:
		return "transfer"
	case tracing.BalanceDecreaseGasBuy:
		return "gas_buy"
	case tracing.BalanceIncreaseGasReturn:
		return "gas_return"
	case tracing.BalanceIncreaseRewardTransactionFee:
		return "tip"
	case tracing.BalanceDecreaseSelfdestruct, tracing.BalanceIncreaseSelfdestruct:
		return "selfdestruct"
	case tracing.BalanceChangeUnspecified:
		return "unspecified"
	}
	return "unknown"
}

// NonceReason returns a human-readable string for r.
func NonceReason(r tracing.NonceChangeReason) string {
	switch r {
	case NonceChangeMinter:
		return "minter"
	case tracing.NonceChangeEoACall:
		return "eoa_call"
	case tracing.NonceChangeContractCreator:
		return "contract_creator"
	case tracing.NonceChangeNewContract:
		return "new_contract"
	case tracing.NonceChangeUnspecified:
		return "unspecified"
	}
	return "unknown"
}

// LoggingHooks returns hooks that trace every balance and nonce change of an
// execution to logger.
func LoggingHooks(logger log.Logger) *tracing.Hooks {
	return &tracing.Hooks{
		OnBalanceChange: func(addr common.Address, prev, next *big.Int, reason tracing.BalanceChangeReason) {
			logger.Trace("Balance change", "addr", addr, "prev", prev, "new", next, "reason", BalanceReason(reason))
		},
		OnNonceChange: func(addr common.Address, prev, next uint64) {
			logger.Trace("Nonce change", "addr", addr, "prev", prev, "new", next)
		},
	}
}
