package core

import (
	"errors"

	"github.com/signetlabs/signet-node/core/orders"
)

var (
	// ErrSenderRecovery is returned when a rollup transaction carries an
	// invalid signature. The transaction is dropped.
	ErrSenderRecovery = errors.New("sender recovery failed")

	// ErrInvalidTx wraps the validation errors reported by the EVM before
	// execution starts (nonce, intrinsic gas, fee cap, balance).
	ErrInvalidTx = errors.New("invalid transaction")

	// ErrUnusedGasShortfall is returned when a metered system transaction's
	// sender cannot pay for the gas it did not use.
	ErrUnusedGasShortfall = errors.New("insufficient balance for unused gas")

	// ErrInterrupted is returned when execution was cancelled by a deadline.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrDatabase wraps errors surfaced by the state database. They abort the
	// whole block.
	ErrDatabase = errors.New("state database error")
)

// IsFatal reports whether err must abort the block being built, as opposed
// to dropping the single unit that produced it.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabase) {
		return true
	}
	switch {
	case orders.IsMarketError(err),
		errors.Is(err, ErrSenderRecovery),
		errors.Is(err, ErrInvalidTx),
		errors.Is(err, ErrUnusedGasShortfall),
		errors.Is(err, ErrInterrupted):
		return false
	}
	return true
}
