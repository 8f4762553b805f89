package orders

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MarketErrorKind classifies a ledger failure.
type MarketErrorKind uint8

const (
	// MissingAsset is returned when an asset key was never credited.
	MissingAsset MarketErrorKind = iota
	// InsufficientBalance is returned when a recipient has been credited
	// less than is required.
	InsufficientBalance
)

func (k MarketErrorKind) String() string {
	switch k {
	case MissingAsset:
		return "missing asset"
	case InsufficientBalance:
		return "insufficient balance"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// MarketError reports that an order cannot be honored by the fills seen so
// far. Market errors are never fatal; the offending unit of work is dropped.
type MarketError struct {
	Kind      MarketErrorKind
	ChainID   uint64
	Asset     common.Address
	Recipient common.Address // unset for MissingAsset
	Amount    uint256.Int    // unset for MissingAsset
}

func (e *MarketError) Error() string {
	if e.Kind == MissingAsset {
		return fmt.Sprintf("missing asset %s on chain %d", e.Asset, e.ChainID)
	}
	return fmt.Sprintf("insufficient balance: chain %d asset %s recipient %s needs %s",
		e.ChainID, e.Asset, e.Recipient, e.Amount.Dec())
}

func missingAsset(key AssetKey) *MarketError {
	return &MarketError{Kind: MissingAsset, ChainID: key.ChainID, Asset: key.Token}
}

func insufficient(key AssetKey, recipient common.Address, amount *uint256.Int) *MarketError {
	return &MarketError{
		Kind:      InsufficientBalance,
		ChainID:   key.ChainID,
		Asset:     key.Token,
		Recipient: recipient,
		Amount:    *amount,
	}
}

// IsMarketError reports whether err carries a *MarketError.
func IsMarketError(err error) bool {
	var me *MarketError
	return errors.As(err, &me)
}
