package miner

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/bundle"
)

// Validity is the result of the pre-flight check of an item against the
// current chain state.
type Validity uint8

const (
	// ValidityNever means the item can never be included, its nonce has
	// already been used.
	ValidityNever Validity = iota
	// ValidityFuture means the item may become includable, for example once
	// its signer's nonce catches up or its balance is topped up.
	ValidityFuture
	// ValidityNow means the item passes the pre-flight check.
	ValidityNow
)

func (v Validity) String() string {
	switch v {
	case ValidityNever:
		return "never"
	case ValidityFuture:
		return "future"
	case ValidityNow:
		return "now"
	}
	return "unknown"
}

func minValidity(a, b Validity) Validity {
	if a < b {
		return a
	}
	return b
}

// StateSource exposes the account reads needed by the pre-flight check.
// *state.StateDB satisfies it.
type StateSource interface {
	GetNonce(addr common.Address) uint64
	GetBalance(addr common.Address) *uint256.Int
}

func checkRequirement(req bundle.TxRequirement, nonce uint64, source StateSource) Validity {
	switch {
	case req.Nonce < nonce:
		return ValidityNever
	case req.Nonce > nonce:
		return ValidityFuture
	case source.GetBalance(req.Signer).Lt(req.Balance):
		return ValidityFuture
	}
	return ValidityNow
}

// checkRequirements checks reqs in order. Nonces are tracked per signer, so
// a signer with several transactions must use consecutive nonces.
func checkRequirements(reqs []bundle.TxRequirement, source StateSource) Validity {
	nonces := make(map[common.Address]uint64)
	for _, req := range reqs {
		nonce, ok := nonces[req.Signer]
		if !ok {
			nonce = source.GetNonce(req.Signer)
		}
		if v := checkRequirement(req, nonce, source); v != ValidityNow {
			return v
		}
		nonces[req.Signer] = nonce + 1
	}
	return ValidityNow
}

// CheckItem runs the pre-flight check of item. It looks at nonces and
// balances only; passing it does not mean the item will execute. Host
// transactions of a bundle are checked against hostSource; without one such
// a bundle is never Now.
func CheckItem(item *SimItem, source, hostSource StateSource) Validity {
	if !item.IsBundle() {
		return checkRequirements(txRequirements(item), source)
	}
	b := item.Bundle()
	v := checkRequirements(b.TxReqs(), source)
	if hostReqs := b.HostTxReqs(); len(hostReqs) > 0 {
		if hostSource == nil {
			return minValidity(v, ValidityFuture)
		}
		v = minValidity(v, checkRequirements(hostReqs, hostSource))
	}
	return v
}

func txRequirements(item *SimItem) []bundle.TxRequirement {
	balance, overflow := uint256.FromBig(item.Tx().Cost())
	if overflow {
		balance = new(uint256.Int).SetAllOne()
	}
	return []bundle.TxRequirement{{Signer: item.Sender(), Nonce: item.Tx().Nonce(), Balance: balance}}
}
