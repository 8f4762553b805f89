package bundle

import (
	"errors"
	"fmt"
)

var (
	ErrBundleEmpty            = errors.New("bundle must contain at least one rollup transaction")
	ErrBlockNumberMismatch    = errors.New("bundle block number does not match")
	ErrTimestampOutOfRange    = errors.New("bundle not valid at block timestamp")
	ErrBlobTxUnsupported      = errors.New("blob transactions are not supported in bundles")
	ErrBundleReverted         = errors.New("bundle reverted")
	ErrNoReplacementUUID      = errors.New("bundle has no replacement uuid")
	ErrInvalidReplacementUUID = errors.New("invalid replacement uuid")
	ErrInvalidHostFill        = errors.New("invalid host fill")
	ErrHostSimulation         = errors.New("host transaction failed")
	ErrNoHostEnv              = errors.New("bundle has host transactions but no host environment")
)

// RecoverError reports a transaction of a bundle that could not be decoded
// or whose sender could not be recovered.
type RecoverError struct {
	Host  bool // whether the transaction is a host transaction
	Index int
	Err   error
}

func (e *RecoverError) Error() string {
	return fmt.Sprintf("failed to decode transaction. Host: %t, Index: %d, Error: %v", e.Host, e.Index, e.Err)
}

func (e *RecoverError) Unwrap() error { return e.Err }
