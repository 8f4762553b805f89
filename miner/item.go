package miner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/bundle"
)

// SimItem is a candidate for inclusion: either a single rollup transaction
// or a bundle.
type SimItem struct {
	tx     *types.Transaction
	sender common.Address
	bundle *bundle.RecoveredBundle
}

// NewTxItem wraps a transaction whose sender was already recovered.
func NewTxItem(tx *types.Transaction, sender common.Address) *SimItem {
	return &SimItem{tx: tx, sender: sender}
}

// NewBundleItem wraps a bundle. Bundles are identified by their replacement
// uuid, so one is required.
func NewBundleItem(b *bundle.RecoveredBundle) (*SimItem, error) {
	if b.ReplacementUUID() == "" {
		return nil, bundle.ErrNoReplacementUUID
	}
	return &SimItem{bundle: b}, nil
}

func (i *SimItem) IsBundle() bool                  { return i.bundle != nil }
func (i *SimItem) Tx() *types.Transaction          { return i.tx }
func (i *SimItem) Sender() common.Address          { return i.sender }
func (i *SimItem) Bundle() *bundle.RecoveredBundle { return i.bundle }

// Identifier is the replacement uuid of a bundle or the hash of a
// transaction.
func (i *SimItem) Identifier() string {
	if i.bundle != nil {
		return i.bundle.ReplacementUUID()
	}
	return i.tx.Hash().Hex()
}

// Transactions returns the rollup transactions of the item in order.
func (i *SimItem) Transactions() types.Transactions {
	if i.bundle != nil {
		return i.bundle.Txs()
	}
	return types.Transactions{i.tx}
}

// TotalFee is the most the item can pay at baseFee: the effective gas price
// times the gas limit, summed over its transactions.
func (i *SimItem) TotalFee(baseFee *big.Int) *uint256.Int {
	total := new(uint256.Int)
	for _, tx := range i.Transactions() {
		fee, overflow := uint256.FromBig(new(big.Int).Mul(effectiveGasPrice(tx, baseFee), new(big.Int).SetUint64(tx.Gas())))
		if overflow {
			return new(uint256.Int).SetAllOne()
		}
		if _, overflow := total.AddOverflow(total, fee); overflow {
			return new(uint256.Int).SetAllOne()
		}
	}
	return total
}

func effectiveGasPrice(tx *types.Transaction, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return tx.GasPrice()
	}
	price := new(big.Int).Add(tx.GasTipCap(), baseFee)
	if price.Cmp(tx.GasFeeCap()) > 0 {
		return tx.GasFeeCap()
	}
	return price
}
