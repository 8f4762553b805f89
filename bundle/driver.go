package bundle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core"
	"github.com/signetlabs/signet-node/core/orders"
)

// HostEnv is the host chain state that the host transactions of a bundle
// are simulated against. Exec must detect fills only, see
// core.NewHostTxExecutor.
type HostEnv struct {
	Exec  *core.TxExecutor
	State *state.StateDB
}

// Driver runs a bundle on top of a state, applying the bundle rules:
//
//   - the bundle holds at least one rollup transaction
//   - its block number is the block being built
//   - the block timestamp is inside its window
//   - every host fill is valid at the block timestamp
//   - a transaction that reverts or fails its fill check aborts the bundle,
//     unless its hash is listed as allowed to revert. A listed transaction
//     that reverts keeps its state changes; one that fails its fill check is
//     discarded and execution continues.
//
// Host transactions run first, on the host state, and the fills they emit
// are credited to the bundle's ledger.
//
// A Driver mutates the states it is given. When Run fails they must be
// discarded.
type Driver struct {
	bundle      *RecoveredBundle
	fills       *orders.AggregateFills
	hostChainID uint64

	outcomes            []*core.Outcome
	totalGasUsed        uint64
	hostGasUsed         uint64
	beneficiaryIncrease *uint256.Int
}

// NewDriver returns a driver for bundle. The bundle's ledger starts as a copy
// of ledger, which may be nil, credited with the bundle's host fills.
func NewDriver(bundle *RecoveredBundle, ledger *orders.AggregateFills, hostChainID uint64) *Driver {
	fills := orders.NewAggregateFills()
	if ledger != nil {
		fills = ledger.Copy()
	}
	for _, fill := range bundle.HostFills() {
		fills.AddSignedFill(hostChainID, fill)
	}
	return &Driver{
		bundle:              bundle,
		fills:               fills,
		hostChainID:         hostChainID,
		beneficiaryIncrease: new(uint256.Int),
	}
}

// Bundle returns the bundle being driven.
func (d *Driver) Bundle() *RecoveredBundle { return d.bundle }

// Fills returns the bundle's ledger. After a successful run it is the input
// ledger with the bundle's fills and orders applied.
func (d *Driver) Fills() *orders.AggregateFills { return d.fills }

// Outcomes returns the accepted rollup transactions.
func (d *Driver) Outcomes() []*core.Outcome { return d.outcomes }

// TotalGasUsed is the rollup gas used by the accepted transactions.
func (d *Driver) TotalGasUsed() uint64 { return d.totalGasUsed }

// HostGasUsed is the gas used by the host transactions.
func (d *Driver) HostGasUsed() uint64 { return d.hostGasUsed }

// BeneficiaryBalanceIncrease is the increase of the block beneficiary's
// balance over the run.
func (d *Driver) BeneficiaryBalanceIncrease() *uint256.Int { return d.beneficiaryIncrease }

func (d *Driver) checkBlock(exec *core.TxExecutor) error {
	env := exec.Env()
	if len(d.bundle.Txs()) == 0 {
		return ErrBundleEmpty
	}
	if env.Number != d.bundle.BlockNumber() {
		return fmt.Errorf("%w: bundle %d, block %d", ErrBlockNumberMismatch, d.bundle.BlockNumber(), env.Number)
	}
	if !d.bundle.ValidAt(env.Number, env.Timestamp) {
		lo, hi := d.bundle.TimestampRange()
		return fmt.Errorf("%w: [%d, %d], block %d", ErrTimestampOutOfRange, lo, hi, env.Timestamp)
	}
	for i, fill := range d.bundle.HostFills() {
		if err := fill.Validate(env.Timestamp); err != nil {
			return fmt.Errorf("%w %d: %w", ErrInvalidHostFill, i, err)
		}
	}
	return nil
}

// Run executes the bundle with exec against statedb. host may be nil if the
// bundle carries no host transactions.
func (d *Driver) Run(exec *core.TxExecutor, statedb *state.StateDB, host *HostEnv) error {
	d.outcomes, d.totalGasUsed, d.hostGasUsed = nil, 0, 0
	d.beneficiaryIncrease = new(uint256.Int)

	if err := d.checkBlock(exec); err != nil {
		return err
	}
	beneficiary := exec.Env().Coinbase
	initial := statedb.GetBalance(beneficiary).Clone()

	if len(d.bundle.HostTxs()) > 0 {
		if host == nil {
			return ErrNoHostEnv
		}
		if err := d.runHost(host); err != nil {
			return err
		}
	}

	for _, tx := range d.bundle.Txs() {
		hash := tx.Hash()
		out, err := exec.ExecuteTx(statedb, tx, len(d.outcomes), d.fills)
		switch {
		case err == nil && out.Reverted:
			if !d.bundle.MayRevert(hash) {
				log.Debug("Bundle transaction reverted", "tx", hash)
				return fmt.Errorf("%w: tx %s reverted", ErrBundleReverted, hash)
			}
		case err == nil:
		case orders.IsMarketError(err):
			if !d.bundle.MayRevert(hash) {
				log.Debug("Bundle transaction has insufficient fills", "tx", hash, "err", err)
				return fmt.Errorf("%w: tx %s: %w", ErrBundleReverted, hash, err)
			}
			log.Debug("Discarding bundle transaction with insufficient fills", "tx", hash)
			continue
		default:
			return err
		}
		d.outcomes = append(d.outcomes, out)
		d.totalGasUsed += out.GasUsed
	}

	if final := statedb.GetBalance(beneficiary); final.Gt(initial) {
		d.beneficiaryIncrease = new(uint256.Int).Sub(final, initial)
	}
	return nil
}

func (d *Driver) runHost(host *HostEnv) error {
	for i, tx := range d.bundle.HostTxs() {
		out, err := host.Exec.ExecuteTx(host.State, tx, i, d.fills)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			return fmt.Errorf("%w: tx %s: %w", ErrHostSimulation, tx.Hash(), err)
		}
		if out.Reverted {
			return fmt.Errorf("%w: tx %s reverted", ErrHostSimulation, tx.Hash())
		}
		d.hostGasUsed += out.GasUsed
	}
	return nil
}
