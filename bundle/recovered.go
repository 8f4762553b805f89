package bundle

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core/orders"
)

// TxRequirement is what the state must satisfy for a transaction to be
// includable: the signer's next nonce and a balance covering the maximum
// spend (gas limit times fee cap, plus value).
type TxRequirement struct {
	Signer  common.Address
	Nonce   uint64
	Balance *uint256.Int
}

// RecoveredBundle is a bundle with decoded transactions and recovered
// senders. It is immutable once built and safe to share between
// simulations.
type RecoveredBundle struct {
	txs         types.Transactions
	senders     []common.Address
	hostTxs     types.Transactions
	hostSenders []common.Address

	blockNumber  uint64
	minTimestamp uint64
	maxTimestamp uint64

	reverting       mapset.Set[common.Hash]
	replacementUUID string
	hostFills       []*orders.SignedFill
}

func (b *RecoveredBundle) Txs() types.Transactions         { return b.txs }
func (b *RecoveredBundle) Senders() []common.Address       { return b.senders }
func (b *RecoveredBundle) HostTxs() types.Transactions     { return b.hostTxs }
func (b *RecoveredBundle) HostFills() []*orders.SignedFill { return b.hostFills }
func (b *RecoveredBundle) BlockNumber() uint64             { return b.blockNumber }
func (b *RecoveredBundle) ReplacementUUID() string         { return b.replacementUUID }

// TimestampRange returns the inclusive window the bundle is valid in.
func (b *RecoveredBundle) TimestampRange() (uint64, uint64) {
	return b.minTimestamp, b.maxTimestamp
}

// ValidAt reports whether the bundle may be included in block number at
// timestamp.
func (b *RecoveredBundle) ValidAt(number, timestamp uint64) bool {
	return number == b.blockNumber && b.minTimestamp <= timestamp && timestamp <= b.maxTimestamp
}

// NeverValidAfter reports whether a block at number and timestamp is past
// the bundle's window, so that it can never be included again.
func (b *RecoveredBundle) NeverValidAfter(number, timestamp uint64) bool {
	return number > b.blockNumber || timestamp > b.maxTimestamp
}

// MayRevert reports whether the bundle tolerates tx reverting or failing
// its fill check.
func (b *RecoveredBundle) MayRevert(tx common.Hash) bool {
	return b.reverting != nil && b.reverting.Contains(tx)
}

// Hash is keccak256 of the concatenated rollup transaction hashes.
func (b *RecoveredBundle) Hash() common.Hash {
	buf := make([]byte, 0, len(b.txs)*common.HashLength)
	for _, tx := range b.txs {
		buf = append(buf, tx.Hash().Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

func requirements(txs types.Transactions, senders []common.Address) []TxRequirement {
	reqs := make([]TxRequirement, len(txs))
	for i, tx := range txs {
		balance, overflow := uint256.FromBig(tx.Cost())
		if overflow {
			balance = new(uint256.Int).SetAllOne()
		}
		reqs[i] = TxRequirement{Signer: senders[i], Nonce: tx.Nonce(), Balance: balance}
	}
	return reqs
}

// TxReqs returns the requirements of the rollup transactions, in order.
func (b *RecoveredBundle) TxReqs() []TxRequirement {
	return requirements(b.txs, b.senders)
}

// HostTxReqs returns the requirements of the host transactions, in order.
func (b *RecoveredBundle) HostTxReqs() []TxRequirement {
	return requirements(b.hostTxs, b.hostSenders)
}
