package core

import (
	"errors"
	"math/big"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core/extract"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/core/vm"
	"github.com/signetlabs/signet-node/params"
	rtracing "github.com/signetlabs/signet-node/tracing"
)

var errDriverUsed = errors.New("driver already ran")

// ProcessResult is the sealed rollup block and everything produced while
// building it.
type ProcessResult struct {
	Block    *types.Block
	Receipts types.Receipts
	Senders  []common.Address
	Logs     []*types.Log
	GasUsed  uint64
	Dropped  int
}

// Driver builds one rollup block from the extracts of a host block and an
// ordered list of rollup transactions. Execution runs in fixed phases:
//
//  1. rollup transactions, metered, checked against the fill ledger
//  2. Enter credits
//  3. EnterToken mints
//  4. Transact events, metered, checked against the fill ledger
//  5. clearing the rollup passage balance
//  6. crediting the base fee of all metered gas to the base fee recipient
//
// Units that fail the ledger check or cannot pay for unused gas are dropped
// from the block with their state changes discarded. Database errors abort
// the block.
type Driver struct {
	config    *ethparams.ChainConfig
	constants *params.SystemConstants
	extracts  *extract.Extracts
	parent    *types.Header
	toProcess types.Transactions

	env   *vm.BlockEnv
	exec  *TxExecutor
	hooks *tracing.Hooks
	fills *orders.AggregateFills

	txs      types.Transactions
	receipts types.Receipts
	senders  []common.Address

	cumulativeGasUsed uint64
	payableGasUsed    uint64
	dropped           int
	ran               bool
}

// NewDriver returns a driver for the rollup block built from extracts on top
// of parent. The fill ledger is seeded with the host fills of the extracts.
func NewDriver(config *ethparams.ChainConfig, constants *params.SystemConstants, extracts *extract.Extracts, parent *types.Header, txs types.Transactions) *Driver {
	env := NewBlockEnv(config, extracts, parent)
	return &Driver{
		config:    config,
		constants: constants,
		extracts:  extracts,
		parent:    parent,
		toProcess: txs,
		env:       env,
		exec:      NewTxExecutor(config, env, constants.Rollup.Orders),
		fills:     extracts.AggregateFills(),
	}
}

// WithHooks installs tracing hooks on every execution of the driver.
func (d *Driver) WithHooks(hooks *tracing.Hooks) *Driver {
	d.hooks = hooks
	d.exec.WithHooks(hooks)
	return d
}

// Env returns the block environment.
func (d *Driver) Env() *vm.BlockEnv { return d.env }

// Fills returns the fill ledger as it stands.
func (d *Driver) Fills() *orders.AggregateFills { return d.fills }

// CumulativeGasUsed is the gas used by every accepted unit so far.
func (d *Driver) CumulativeGasUsed() uint64 { return d.cumulativeGasUsed }

// PayableGasUsed is the gas of accepted transactions and Transact events.
func (d *Driver) PayableGasUsed() uint64 { return d.payableGasUsed }

func (d *Driver) accept(out *Outcome) {
	d.cumulativeGasUsed += out.GasUsed
	if out.Payable {
		d.payableGasUsed += out.GasUsed
	}
	out.Receipt.CumulativeGasUsed = d.cumulativeGasUsed
	d.txs = append(d.txs, out.Tx)
	d.receipts = append(d.receipts, out.Receipt)
	d.senders = append(d.senders, out.Sender)
	acceptedMeter.Mark(1)
}

// handle accepts out, or classifies err. Only fatal errors are returned.
func (d *Driver) handle(out *Outcome, err error, msg string, ctx ...interface{}) error {
	if err == nil {
		d.accept(out)
		return nil
	}
	if IsFatal(err) {
		log.Error("Fatal error building rollup block", append(ctx, "err", err)...)
		return err
	}
	d.dropped++
	droppedMeter.Mark(1)
	log.Debug(msg, append(ctx, "err", err)...)
	return nil
}

// Run executes all phases against statedb.
func (d *Driver) Run(statedb *state.StateDB) error {
	if d.ran {
		return errDriverUsed
	}
	d.ran = true
	defer func(start time.Time) { blockTimer.UpdateSince(start) }(time.Now())

	log.Debug("Running rollup block", "number", d.env.Number, "txs", len(d.toProcess),
		"enters", len(d.extracts.Enters), "enterTokens", len(d.extracts.EnterTokens),
		"transacts", len(d.extracts.Transacts), "beneficiary", d.env.Coinbase,
		"baseFee", d.env.BaseFee, "parent", d.parent.Hash())

	if err := d.executeTransactions(statedb); err != nil {
		return err
	}
	if err := d.runMints(statedb); err != nil {
		return err
	}
	if err := d.executeTransacts(statedb); err != nil {
		return err
	}
	d.clearPassage(statedb)
	d.creditBaseFee(statedb)
	if err := statedb.Error(); err != nil {
		return errors.Join(ErrDatabase, err)
	}
	return nil
}

func (d *Driver) executeTransactions(statedb *state.StateDB) error {
	for _, tx := range d.toProcess {
		out, err := d.exec.ExecuteTx(statedb, tx, len(d.txs), d.fills)
		if err := d.handle(out, err, "Dropping rollup transaction", "tx", tx.Hash(), "nonce", tx.Nonce()); err != nil {
			return err
		}
	}
	return nil
}

// runMints credits Enters and applies EnterTokens. The minter nonce is read
// once and written once; each mint is numbered from it.
func (d *Driver) runMints(statedb *state.StateDB) error {
	var (
		chainID = d.extracts.ChainID
		nonce   = statedb.GetNonce(params.MinterAddress)

		ethMinted = new(big.Int)
		ethAccts  = mapset.NewThreadUnsafeSet[common.Address]()
		usdMinted = new(big.Int)
		usdAccts  = mapset.NewThreadUnsafeSet[common.Address]()
	)
	for _, ev := range d.extracts.Enters {
		mint := NewMintNativeEnter(ev, chainID)
		mint.PopulateNonce(nonce)
		nonce++
		out, err := d.exec.ApplyAction(statedb, mint, len(d.txs))
		if err := d.handle(out, err, "Dropping enter", "host_tx", ev.TxHash, "log_index", ev.LogIndex); err != nil {
			return err
		}
		ethMinted.Add(ethMinted, mint.MintAmount())
		ethAccts.Add(mint.Recipient())
	}
	for _, ev := range d.extracts.EnterTokens {
		var unit SysOutput
		if rec, ok := d.constants.HostUSD(ev.Event.Token); ok {
			mint := NewMintNativeUSD(ev, rec.Decimals, chainID)
			usdMinted.Add(usdMinted, mint.MintAmount())
			usdAccts.Add(mint.Recipient())
			unit = mint
		} else if token, ok := d.constants.RollupTokenFromHost(ev.Event.Token); ok {
			unit = NewMintToken(ev, token, chainID)
		} else {
			log.Warn("Skipping enter of unpermissioned token", "host_tx", ev.TxHash, "token", ev.Event.Token)
			continue
		}
		unit.PopulateNonce(nonce)
		nonce++
		out, err := d.exec.Execute(statedb, unit, len(d.txs), nil)
		if err := d.handle(out, err, "Dropping enter token", "host_tx", ev.TxHash, "log_index", ev.LogIndex); err != nil {
			return err
		}
	}
	statedb.SetNonce(params.MinterAddress, nonce, rtracing.NonceChangeMinter)
	log.Debug("Minting completed", "ethMinted", ethMinted, "ethAccts", ethAccts.Cardinality(),
		"usdMinted", usdMinted, "usdAccts", usdAccts.Cardinality(), "minterNonce", nonce)
	return nil
}

func (d *Driver) executeTransacts(statedb *state.StateDB) error {
	for _, ev := range d.extracts.Transacts {
		sys := NewTransactSysTx(ev, d.extracts.ChainID)
		sys.PopulateNonce(statedb.GetNonce(sys.Sender()))
		log.Debug("Applying metered sys tx", "sys", sys, "nonce", sys.nonce)
		out, err := d.exec.ExecuteMetered(statedb, sys, len(d.txs), d.fills)
		if err := d.handle(out, err, "Dropping transact", "host_tx", ev.TxHash, "log_index", ev.LogIndex); err != nil {
			return err
		}
	}
	return nil
}

// clearPassage burns the native balance exited through the rollup passage.
func (d *Driver) clearPassage(statedb *state.StateDB) {
	passage := d.constants.Rollup.Passage
	burned := statedb.GetBalance(passage)
	if burned.IsZero() {
		return
	}
	d.exec.stateDB(statedb).SubBalance(passage, burned.Clone(), rtracing.BalanceDecreasePassageClear)
	log.Debug("Zeroed rollup passage balance", "burned", burned)
}

// creditBaseFee pays the base fee of all payable gas to the base fee
// recipient.
func (d *Driver) creditBaseFee(statedb *state.StateDB) {
	recipient := d.constants.Rollup.BaseFeeRecipient
	amount := new(uint256.Int).Mul(uint256.NewInt(d.payableGasUsed), toU256(d.env.BaseFee))
	if amount.IsZero() {
		log.Debug("No base fee to credit", "gasUsed", d.payableGasUsed, "recipient", recipient)
		return
	}
	d.exec.stateDB(statedb).AddBalance(recipient, amount, rtracing.BalanceIncreaseBaseFee)
	log.Debug("Crediting base fee", "amount", amount, "gasUsed", d.payableGasUsed, "recipient", recipient)
}

// Finish seals the block over statedb and patches receipts and logs with the
// block hash.
func (d *Driver) Finish(statedb *state.StateDB) *ProcessResult {
	num := new(big.Int).SetUint64(d.env.Number)
	header := &types.Header{
		ParentHash: d.parent.Hash(),
		Coinbase:   d.env.Coinbase,
		Root:       statedb.IntermediateRoot(d.config.IsEIP158(num)),
		Difficulty: new(big.Int),
		Number:     num,
		GasLimit:   d.env.GasLimit,
		GasUsed:    d.cumulativeGasUsed,
		Time:       d.env.Timestamp,
		MixDigest:  d.env.PrevRandao,
		BaseFee:    new(big.Int).Set(d.env.BaseFee),
	}
	block := types.NewBlock(header, &types.Body{Transactions: d.txs}, d.receipts, trie.NewStackTrie(nil))
	hash := block.Hash()

	var logs []*types.Log
	for _, receipt := range d.receipts {
		receipt.BlockHash = hash
		for _, lg := range receipt.Logs {
			lg.BlockHash = hash
		}
		logs = append(logs, receipt.Logs...)
	}
	log.Info("Built rollup block", "number", d.env.Number, "hash", hash, "txs", len(d.txs),
		"gasUsed", d.cumulativeGasUsed, "payable", d.payableGasUsed, "dropped", d.dropped)
	return &ProcessResult{
		Block:    block,
		Receipts: d.receipts,
		Senders:  d.senders,
		Logs:     logs,
		GasUsed:  d.cumulativeGasUsed,
		Dropped:  d.dropped,
	}
}

// Process runs the driver and seals the block.
func (d *Driver) Process(statedb *state.StateDB) (*ProcessResult, error) {
	if err := d.Run(statedb); err != nil {
		return nil, err
	}
	return d.Finish(statedb), nil
}
