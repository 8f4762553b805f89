package extract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/params"
)

var ErrBeforeDeploy = errors.New("host block precedes rollup deployment")

// Extracts is everything a host block contributes to one rollup block.
type Extracts struct {
	HostNumber    uint64
	HostTimestamp uint64
	HostMixDigest common.Hash
	ChainID       uint64 // rollup chain id
	RuHeight      uint64

	Submitted   *ExtractedEvent[*BlockSubmitted]
	Enters      []ExtractedEvent[*Enter]
	EnterTokens []ExtractedEvent[*EnterToken]
	Transacts   []ExtractedEvent[*Transact]

	fills *orders.AggregateFills
}

// NewExtracts returns an empty set of extracts for a host block.
func NewExtracts(hostNumber, hostTimestamp, chainID, ruHeight uint64) *Extracts {
	return &Extracts{
		HostNumber:    hostNumber,
		HostTimestamp: hostTimestamp,
		ChainID:       chainID,
		RuHeight:      ruHeight,
		fills:         orders.NewAggregateFills(),
	}
}

// ContainsBlock reports whether a rollup block was submitted in this host
// block.
func (e *Extracts) ContainsBlock() bool { return e.Submitted != nil }

// AggregateFills returns a copy of the fills performed on the host in this
// block. It seeds the rollup ledger for the block.
func (e *Extracts) AggregateFills() *orders.AggregateFills {
	if e.fills == nil {
		return orders.NewAggregateFills()
	}
	return e.fills.Copy()
}

// AddHostFill records a host Filled event.
func (e *Extracts) AddHostFill(hostChainID uint64, fill *orders.Filled) {
	if e.fills == nil {
		e.fills = orders.NewAggregateFills()
	}
	e.fills.AddFill(hostChainID, fill)
}

// Extractor turns host receipts into Extracts.
type Extractor struct {
	constants *params.SystemConstants
}

func NewExtractor(constants *params.SystemConstants) *Extractor {
	return &Extractor{constants: constants}
}

// Extract scans the receipts of a host block. Logs from unknown contracts or
// for other rollups are ignored, as are EnterToken events for tokens that are
// not permissioned.
func (x *Extractor) Extract(header *types.Header, receipts types.Receipts) (*Extracts, error) {
	c := x.constants
	num := header.Number.Uint64()
	if num <= c.Host.DeployHeight {
		return nil, fmt.Errorf("%w: block %d, deploy height %d", ErrBeforeDeploy, num, c.Host.DeployHeight)
	}
	ex := NewExtracts(num, header.Time, c.Rollup.ChainID, num-c.Host.DeployHeight)
	ex.HostMixDigest = header.MixDigest
	ruChain := c.Rollup.ChainID

	for _, receipt := range receipts {
		for i, lg := range receipt.Logs {
			idx := uint32(i)
			switch lg.Address {
			case c.Host.Zenith:
				if ev, ok := DecodeBlockSubmitted(lg, ruChain); ok {
					ex.Submitted = &ExtractedEvent[*BlockSubmitted]{receipt.TxHash, idx, ev}
				}
			case c.Host.Orders:
				if ev, ok := DecodeHostFilled(lg, ruChain); ok {
					ex.AddHostFill(c.Host.ChainID, ev)
				}
			case c.Host.Transactor:
				if ev, ok := DecodeTransact(lg, ruChain); ok {
					ex.Transacts = append(ex.Transacts, ExtractedEvent[*Transact]{receipt.TxHash, idx, ev})
				}
			case c.Host.Passage:
				if ev, ok := DecodeEnter(lg, ruChain); ok {
					ex.Enters = append(ex.Enters, ExtractedEvent[*Enter]{receipt.TxHash, idx, ev})
					continue
				}
				if ev, ok := DecodeEnterToken(lg, ruChain); ok {
					if !x.isHostToken(ev) {
						log.Debug("Ignoring enter of unknown token", "tx", receipt.TxHash, "token", ev.Token)
						continue
					}
					ex.EnterTokens = append(ex.EnterTokens, ExtractedEvent[*EnterToken]{receipt.TxHash, idx, ev})
				}
			}
		}
	}
	log.Debug("Extracted host block", "number", num, "ruHeight", ex.RuHeight,
		"enters", len(ex.Enters), "enterTokens", len(ex.EnterTokens),
		"transacts", len(ex.Transacts), "submitted", ex.ContainsBlock())
	return ex, nil
}

func (x *Extractor) isHostToken(ev *EnterToken) bool {
	if _, ok := x.constants.RollupTokenFromHost(ev.Token); ok {
		return true
	}
	return x.constants.IsHostUSD(ev.Token)
}
