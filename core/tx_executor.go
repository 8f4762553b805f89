package core

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core/orders"
	"github.com/signetlabs/signet-node/core/vm"
	rtracing "github.com/signetlabs/signet-node/tracing"
)

// Outcome is a unit of work that was executed and accepted into the state.
type Outcome struct {
	Tx     *types.Transaction
	Sender common.Address
	// Receipt of the unit. CumulativeGasUsed is left to the block builder.
	Receipt *types.Receipt
	GasUsed uint64
	// Payable units pay the base fee for their gas.
	Payable bool
	// Reverted is set when the EVM call failed. The unit is still accepted.
	Reverted bool
}

// TxExecutor runs single units of work against a state: rollup
// transactions and the three kinds of system units. Every unit that can
// create orders is checked against a fill ledger before its changes are
// committed; failing units leave the state untouched.
//
// The block driver, the bundle driver and the simulator all execute through
// a TxExecutor, so a simulated unit behaves exactly as it will in the block.
type TxExecutor struct {
	config   *ethparams.ChainConfig
	env      *vm.BlockEnv
	signer   types.Signer
	detector *vm.OrderDetector
	hooks    *tracing.Hooks
	gasPool  *gethcore.GasPool
	deadline time.Time
}

// NewTxExecutor returns an executor for the block described by env. Order
// events are detected on ordersContract.
func NewTxExecutor(config *ethparams.ChainConfig, env *vm.BlockEnv, ordersContract common.Address) *TxExecutor {
	return &TxExecutor{
		config:   config,
		env:      env,
		signer:   types.MakeSigner(config, new(big.Int).SetUint64(env.Number), env.Timestamp),
		detector: vm.NewOrderDetector(ordersContract, config.ChainID.Uint64()),
		gasPool:  new(gethcore.GasPool).AddGas(env.GasLimit),
	}
}

// NewHostTxExecutor returns an executor for host transactions. Only Filled
// events of ordersContract are detected, credited on the host chain.
func NewHostTxExecutor(config *ethparams.ChainConfig, env *vm.BlockEnv, ordersContract common.Address) *TxExecutor {
	e := NewTxExecutor(config, env, ordersContract)
	e.detector = vm.NewFillDetector(ordersContract, config.ChainID.Uint64())
	return e
}

// WithHooks installs additional tracing hooks. They see every EVM event and
// every balance change made by system units.
func (e *TxExecutor) WithHooks(hooks *tracing.Hooks) *TxExecutor {
	e.hooks = hooks
	e.detector.WithInner(hooks)
	return e
}

// WithDeadline makes execution past deadline fail with ErrInterrupted.
func (e *TxExecutor) WithDeadline(deadline time.Time) *TxExecutor {
	e.deadline = deadline
	return e
}

// WithGasPool replaces the pool rollup transactions draw from.
func (e *TxExecutor) WithGasPool(gp *gethcore.GasPool) *TxExecutor {
	e.gasPool = gp
	return e
}

// Engine returns the name of the execution backend.
func (e *TxExecutor) Engine() string { return vm.Engine }

// Env returns the block environment.
func (e *TxExecutor) Env() *vm.BlockEnv { return e.env }

// Signer returns the signer used to recover rollup senders.
func (e *TxExecutor) Signer() types.Signer { return e.signer }

// GasPool returns the pool rollup transactions draw from.
func (e *TxExecutor) GasPool() *gethcore.GasPool { return e.gasPool }

func (e *TxExecutor) stateDB(statedb *state.StateDB) gethvm.StateDB {
	if e.hooks != nil {
		return state.NewHookedState(statedb, e.hooks)
	}
	return statedb
}

// apply runs msg as transaction txHash. On success the changes are in the
// state but not finalised, and snap reverts them.
func (e *TxExecutor) apply(statedb *state.StateDB, msg *gethcore.Message, txHash common.Hash, index int, gp *gethcore.GasPool, noBaseFee bool) (*gethcore.ExecutionResult, int, error) {
	statedb.SetTxContext(txHash, index)
	snap := statedb.Snapshot()

	e.detector.Reset()
	evm := vm.NewEVM(e.env, statedb, e.config, vm.Config{Hooks: e.detector.Hooks(), NoBaseFee: noBaseFee})
	evm.SetTxContext(gethcore.NewEVMTxContext(msg))

	stop := vm.Interrupt(evm, e.deadline)
	result, err := gethcore.ApplyMessage(evm, msg, gp)
	fired := stop()

	if dbErr := statedb.Error(); dbErr != nil {
		statedb.RevertToSnapshot(snap)
		return nil, 0, fmt.Errorf("%w: %v", ErrDatabase, dbErr)
	}
	if err != nil {
		statedb.RevertToSnapshot(snap)
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	if fired || evm.Cancelled() {
		statedb.RevertToSnapshot(snap)
		gp.AddGas(result.UsedGas)
		return nil, 0, ErrInterrupted
	}
	return result, snap, nil
}

// settle checks the orders and fills captured during the last execution
// against ledger and commits the execution. When the check fails the
// execution is reverted and the ledger is left untouched.
func (e *TxExecutor) settle(statedb *state.StateDB, snap int, ledger *orders.AggregateFills) error {
	agg, fills := e.detector.TakeAggregates()
	if ledger != nil {
		if err := ledger.CheckedRemoveRuTxEvents(fills, agg); err != nil {
			statedb.RevertToSnapshot(snap)
			return err
		}
	} else if !agg.IsEmpty() {
		log.Warn("Orders created without a ledger", "outputs", len(agg.Outputs))
	}
	statedb.Finalise(true)
	return nil
}

// ExecuteTx runs a signed rollup transaction. Its gas is payable.
func (e *TxExecutor) ExecuteTx(statedb *state.StateDB, tx *types.Transaction, index int, ledger *orders.AggregateFills) (*Outcome, error) {
	if tx.Type() == types.BlobTxType {
		return nil, fmt.Errorf("%w: blob transactions unsupported", ErrInvalidTx)
	}
	sender, err := types.Sender(e.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSenderRecovery, err)
	}
	msg, err := gethcore.TransactionToMessage(tx, e.signer, e.env.BaseFee)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}
	result, snap, err := e.apply(statedb, msg, tx.Hash(), index, e.gasPool, false)
	if err != nil {
		return nil, err
	}
	if err := e.settle(statedb, snap, ledger); err != nil {
		e.gasPool.AddGas(result.UsedGas)
		return nil, err
	}
	receipt := e.makeReceipt(statedb, tx, sender, result.Failed(), result.UsedGas)
	receipt.EffectiveGasPrice = msg.GasPrice
	return &Outcome{
		Tx:       tx,
		Sender:   sender,
		Receipt:  receipt,
		GasUsed:  result.UsedGas,
		Payable:  true,
		Reverted: result.Failed(),
	}, nil
}

// Execute dispatches a system unit on its capabilities.
func (e *TxExecutor) Execute(statedb *state.StateDB, unit SysOutput, index int, ledger *orders.AggregateFills) (*Outcome, error) {
	switch u := unit.(type) {
	case SysAction:
		return e.ApplyAction(statedb, u, index)
	case MeteredSysTx:
		return e.ExecuteMetered(statedb, u, index, ledger)
	case UnmeteredSysTx:
		return e.ExecuteUnmetered(statedb, u, index)
	}
	return nil, fmt.Errorf("unsupported system unit %T", unit)
}

func populateNonce(statedb *state.StateDB, unit SysOutput) {
	if !unit.HasNonce() {
		unit.PopulateNonce(statedb.GetNonce(unit.Sender()))
	}
}

// ApplyAction applies a system action. It cannot fail short of a database
// error.
func (e *TxExecutor) ApplyAction(statedb *state.StateDB, act SysAction, index int) (*Outcome, error) {
	populateNonce(statedb, act)
	tx := act.Transaction()
	statedb.SetTxContext(tx.Hash(), index)

	act.Apply(e.stateDB(statedb))
	statedb.AddLog(act.Log())
	if err := statedb.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	statedb.Finalise(true)

	return &Outcome{
		Tx:      tx,
		Sender:  act.Sender(),
		Receipt: e.makeReceipt(statedb, tx, act.Sender(), false, SysActionGas),
		GasUsed: SysActionGas,
	}, nil
}

func sysMessage(sys SysTx, nonce, gasLimit uint64, feeCap, price *big.Int) *gethcore.Message {
	to := sys.Callee()
	return &gethcore.Message{
		From:             sys.Sender(),
		To:               &to,
		Nonce:            nonce,
		Value:            sys.Value(),
		GasLimit:         gasLimit,
		GasPrice:         price,
		GasFeeCap:        feeCap,
		GasTipCap:        new(big.Int),
		Data:             sys.Input(),
		SkipNonceChecks:  true,
		SkipFromEOACheck: true,
	}
}

// ExecuteUnmetered runs an unmetered system transaction. Its gas is neither
// paid for nor payable, and its events are not checked against the ledger.
func (e *TxExecutor) ExecuteUnmetered(statedb *state.StateDB, sys UnmeteredSysTx, index int) (*Outcome, error) {
	populateNonce(statedb, sys)
	tx := sys.Transaction()
	msg := sysMessage(sys, tx.Nonce(), UnmeteredGasLimit, new(big.Int), new(big.Int))

	gp := new(gethcore.GasPool).AddGas(msg.GasLimit)
	result, snap, err := e.apply(statedb, msg, tx.Hash(), index, gp, true)
	if err != nil {
		return nil, err
	}
	if !result.Failed() {
		statedb.AddLog(sys.Log())
	}
	if err := e.settle(statedb, snap, nil); err != nil {
		return nil, err
	}
	return &Outcome{
		Tx:       tx,
		Sender:   sys.Sender(),
		Receipt:  e.makeReceipt(statedb, tx, sys.Sender(), result.Failed(), result.UsedGas),
		GasUsed:  result.UsedGas,
		Reverted: result.Failed(),
	}, nil
}

// ExecuteMetered runs a metered system transaction. The sender pays for the
// full declared gas limit at the base fee: after execution the unused part
// is debited separately, and if the sender can no longer afford it the whole
// execution is discarded with ErrUnusedGasShortfall. The reported gas used
// is the declared limit, all of it payable.
func (e *TxExecutor) ExecuteMetered(statedb *state.StateDB, sys MeteredSysTx, index int, ledger *orders.AggregateFills) (*Outcome, error) {
	populateNonce(statedb, sys)
	tx := sys.Transaction()

	baseFee := e.env.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := sys.MaxFeePerGas()
	price := feeCap
	if baseFee.Cmp(feeCap) < 0 {
		price = new(big.Int).Set(baseFee)
	}
	msg := sysMessage(sys, tx.Nonce(), sys.GasLimit(), feeCap, price)

	gp := new(gethcore.GasPool).AddGas(msg.GasLimit)
	result, snap, err := e.apply(statedb, msg, tx.Hash(), index, gp, false)
	if err != nil {
		return nil, err
	}

	sender := sys.Sender()
	if err := e.chargeUnusedGas(statedb, sender, sys.GasLimit()-result.UsedGas, baseFee); err != nil {
		statedb.RevertToSnapshot(snap)
		e.detector.Reset()
		return nil, err
	}
	if !result.Failed() {
		statedb.AddLog(sys.Log())
	}
	if err := e.settle(statedb, snap, ledger); err != nil {
		return nil, err
	}

	gasUsed := sys.GasLimit()
	receipt := e.makeReceipt(statedb, tx, sender, result.Failed(), gasUsed)
	receipt.EffectiveGasPrice = price
	return &Outcome{
		Tx:       tx,
		Sender:   sender,
		Receipt:  receipt,
		GasUsed:  gasUsed,
		Payable:  true,
		Reverted: result.Failed(),
	}, nil
}

// chargeUnusedGas debits unused gas at baseFee from sender. The EVM checked
// the sender could afford the full limit before execution, but execution may
// have moved the funds since.
func (e *TxExecutor) chargeUnusedGas(statedb *state.StateDB, sender common.Address, unused uint64, baseFee *big.Int) error {
	toDebit := new(uint256.Int).Mul(uint256.NewInt(unused), toU256(baseFee))
	log.Debug("Debiting unused transact gas", "sender", sender, "baseFee", baseFee, "unused", unused, "debit", toDebit)
	if statedb.GetBalance(sender).Cmp(toDebit) < 0 {
		return fmt.Errorf("%w: sender %s owes %s", ErrUnusedGasShortfall, sender, toDebit)
	}
	e.stateDB(statedb).SubBalance(sender, toDebit, rtracing.BalanceDecreaseUnusedGas)
	return nil
}

// makeReceipt builds the receipt of tx from the logs recorded under its
// hash. Block hash and cumulative gas are filled in when the block is
// sealed.
func (e *TxExecutor) makeReceipt(statedb *state.StateDB, tx *types.Transaction, from common.Address, failed bool, gasUsed uint64) *types.Receipt {
	receipt := &types.Receipt{Type: tx.Type(), GasUsed: gasUsed, TxHash: tx.Hash()}
	if failed {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	}
	receipt.Logs = statedb.GetLogs(tx.Hash(), e.env.Number, common.Hash{})
	receipt.Bloom = logsBloom(receipt.Logs)
	receipt.BlockNumber = new(big.Int).SetUint64(e.env.Number)
	receipt.TransactionIndex = uint(statedb.TxIndex())
	return receipt
}

func logsBloom(logs []*types.Log) types.Bloom {
	var bloom types.Bloom
	for _, lg := range logs {
		bloom.Add(lg.Address.Bytes())
		for _, topic := range lg.Topics {
			bloom.Add(topic[:])
		}
	}
	return bloom
}
