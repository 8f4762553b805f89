// Package bundle implements rollup bundles: atomically included groups of
// rollup transactions, optionally paired with host transactions and signed
// host fills, and the driver that runs them with fill checks.
package bundle

import (
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/signetlabs/signet-node/core/orders"
	"golang.org/x/sync/errgroup"
)

// Bundle is the send-bundle request body. Its rollup part follows the
// flashbots eth_sendBundle format; HostTxs and HostFills are delivered on
// the host chain alongside the rollup transactions.
type Bundle struct {
	Txs               []hexutil.Bytes      `json:"txs"`
	HostTxs           []hexutil.Bytes      `json:"hostTxs,omitempty"`
	BlockNumber       hexutil.Uint64       `json:"blockNumber"`
	MinTimestamp      *uint64              `json:"minTimestamp,omitempty"`
	MaxTimestamp      *uint64              `json:"maxTimestamp,omitempty"`
	RevertingTxHashes []common.Hash        `json:"revertingTxHashes,omitempty"`
	ReplacementUUID   string               `json:"replacementUuid,omitempty"`
	HostFills         []*orders.SignedFill `json:"hostFills,omitempty"`
}

// Response is returned for an accepted bundle.
type Response struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// ReplacementID parses the replacement uuid of the bundle.
func (b *Bundle) ReplacementID() (uuid.UUID, error) {
	if b.ReplacementUUID == "" {
		return uuid.Nil, ErrNoReplacementUUID
	}
	id, err := uuid.Parse(b.ReplacementUUID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidReplacementUUID, err)
	}
	return id, nil
}

// ValidAt reports whether timestamp is within the bundle's inclusive
// timestamp window.
func (b *Bundle) ValidAt(timestamp uint64) bool {
	lo, hi := timestampRange(b.MinTimestamp, b.MaxTimestamp)
	return lo <= timestamp && timestamp <= hi
}

func timestampRange(minTs, maxTs *uint64) (uint64, uint64) {
	lo, hi := uint64(0), uint64(math.MaxUint64)
	if minTs != nil {
		lo = *minTs
	}
	if maxTs != nil {
		hi = *maxTs
	}
	return lo, hi
}

// Recover decodes the transactions of the bundle and recovers their senders.
// Rollup and host transactions are processed concurrently. Blob
// transactions are rejected.
func (b *Bundle) Recover(signer, hostSigner types.Signer) (*RecoveredBundle, error) {
	if len(b.Txs) == 0 {
		return nil, ErrBundleEmpty
	}
	lo, hi := timestampRange(b.MinTimestamp, b.MaxTimestamp)
	rb := &RecoveredBundle{
		blockNumber:     uint64(b.BlockNumber),
		minTimestamp:    lo,
		maxTimestamp:    hi,
		reverting:       mapset.NewThreadUnsafeSet[common.Hash](b.RevertingTxHashes...),
		replacementUUID: b.ReplacementUUID,
		hostFills:       b.HostFills,
	}

	var g errgroup.Group
	g.Go(func() (err error) {
		rb.txs, rb.senders, err = decodeTxs(b.Txs, signer, false)
		return err
	})
	if len(b.HostTxs) > 0 {
		g.Go(func() (err error) {
			if hostSigner == nil {
				return &RecoverError{Host: true, Err: ErrNoHostEnv}
			}
			rb.hostTxs, rb.hostSenders, err = decodeTxs(b.HostTxs, hostSigner, true)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rb, nil
}

func decodeTxs(raw []hexutil.Bytes, signer types.Signer, host bool) (types.Transactions, []common.Address, error) {
	txs := make(types.Transactions, len(raw))
	senders := make([]common.Address, len(raw))
	for i, enc := range raw {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(enc); err != nil {
			return nil, nil, &RecoverError{Host: host, Index: i, Err: err}
		}
		if tx.Type() == types.BlobTxType {
			return nil, nil, &RecoverError{Host: host, Index: i, Err: ErrBlobTxUnsupported}
		}
		from, err := types.Sender(signer, tx)
		if err != nil {
			return nil, nil, &RecoverError{Host: host, Index: i, Err: err}
		}
		txs[i], senders[i] = tx, from
	}
	return txs, senders, nil
}

// Encode builds a bundle from signed transactions.
func Encode(txs, hostTxs types.Transactions, blockNumber uint64) (*Bundle, error) {
	b := &Bundle{BlockNumber: hexutil.Uint64(blockNumber)}
	for _, tx := range txs {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.Txs = append(b.Txs, enc)
	}
	for _, tx := range hostTxs {
		enc, err := tx.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b.HostTxs = append(b.HostTxs, enc)
	}
	return b, nil
}
