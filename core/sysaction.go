package core

import (
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	gethvm "github.com/ethereum/go-ethereum/core/vm"
	ethparams "github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/core/extract"
	"github.com/signetlabs/signet-node/core/magicsig"
	"github.com/signetlabs/signet-node/params"
	rtracing "github.com/signetlabs/signet-node/tracing"
)

const (
	// SysActionGas is the gas recorded for a system action. Actions do not
	// run in the EVM, the figure only keeps receipts uniform.
	SysActionGas = ethparams.TxGas

	// UnmeteredGasLimit is the gas available to an unmetered system
	// transaction.
	UnmeteredGasLimit = 1_000_000

	ethDecimals = 18
)

// SysOutput is implemented by every system unit. Each accepted unit adds
// exactly one synthetic transaction and one receipt to the block.
type SysOutput interface {
	// Sender is the account the unit is attributed to.
	Sender() common.Address
	HasNonce() bool
	PopulateNonce(nonce uint64)
	// Transaction returns the synthetic transaction recorded in the block.
	// The nonce must be populated first.
	Transaction() *types.Transaction
	// Log returns the system log emitted by the minter for the unit.
	Log() *types.Log
}

// SysAction is a system unit that modifies state directly, without running
// the EVM.
type SysAction interface {
	SysOutput
	Apply(sdb gethvm.StateDB)
}

// SysTx is a system unit executed as an EVM call.
type SysTx interface {
	SysOutput
	Callee() common.Address
	Input() []byte
	Value() *big.Int
}

// UnmeteredSysTx runs with gas and nonce checks disabled and pays no fees.
type UnmeteredSysTx interface {
	SysTx
	unmetered()
}

// MeteredSysTx pays for its full gas limit at the block base fee. See
// TxExecutor.ExecuteMetered.
type MeteredSysTx interface {
	SysTx
	GasLimit() uint64
	MaxFeePerGas() *big.Int
}

// withMagicSig attaches m to inner and wraps it into a transaction.
func withMagicSig(inner *types.DynamicFeeTx, m magicsig.MagicSig) *types.Transaction {
	inner.V, inner.R, inner.S = m.SignatureValues()
	return types.NewTx(inner)
}

type sysNonce struct {
	nonce uint64
	set   bool
}

func (n *sysNonce) HasNonce() bool { return n.set }

func (n *sysNonce) PopulateNonce(nonce uint64) {
	n.nonce, n.set = nonce, true
}

func (n *sysNonce) mustNonce() uint64 {
	if !n.set {
		panic("system unit nonce not populated")
	}
	return n.nonce
}

// MintNative credits the native asset to a recipient. Enters mint with 18
// decimals; host USD deposits are scaled from the token's decimals.
type MintNative struct {
	sysNonce
	recipient  common.Address
	decimals   uint8
	hostAmount *big.Int
	magic      magicsig.MagicSig
	chainID    uint64
	reason     tracing.BalanceChangeReason
}

// NewMintNativeEnter converts an Enter event into a native mint.
func NewMintNativeEnter(ev extract.ExtractedEvent[*extract.Enter], chainID uint64) *MintNative {
	return &MintNative{
		recipient:  ev.Event.RollupRecipient,
		decimals:   ethDecimals,
		hostAmount: bigOrZero(ev.Event.Amount),
		magic:      magicsig.NewEnter(ev.TxHash, ev.LogIndex),
		chainID:    chainID,
		reason:     rtracing.BalanceIncreaseEnter,
	}
}

// NewMintNativeUSD converts an EnterToken of the host USD token into a
// native mint.
func NewMintNativeUSD(ev extract.ExtractedEvent[*extract.EnterToken], decimals uint8, chainID uint64) *MintNative {
	return &MintNative{
		recipient:  ev.Event.RollupRecipient,
		decimals:   decimals,
		hostAmount: bigOrZero(ev.Event.Amount),
		magic:      magicsig.NewEnterToken(ev.TxHash, ev.LogIndex),
		chainID:    chainID,
		reason:     rtracing.BalanceIncreaseEnterUSD,
	}
}

func (m *MintNative) Sender() common.Address { return params.MinterAddress }
func (m *MintNative) Recipient() common.Address { return m.recipient }

// MintAmount is the host amount scaled to 18 decimals.
func (m *MintNative) MintAmount() *big.Int {
	switch {
	case m.decimals > ethDecimals:
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(m.decimals-ethDecimals)), nil)
		return new(big.Int).Quo(m.hostAmount, div)
	case m.decimals < ethDecimals:
		mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(ethDecimals-m.decimals)), nil)
		return new(big.Int).Mul(m.hostAmount, mul)
	}
	return new(big.Int).Set(m.hostAmount)
}

func (m *MintNative) Apply(sdb gethvm.StateDB) {
	sdb.AddBalance(m.recipient, toU256(m.MintAmount()), m.reason)
}

func (m *MintNative) Transaction() *types.Transaction {
	to := m.recipient
	return withMagicSig(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(m.chainID),
		Nonce:     m.mustNonce(),
		GasTipCap: new(big.Int),
		GasFeeCap: new(big.Int),
		Gas:       SysActionGas,
		To:        &to,
		Value:     new(big.Int).Set(m.hostAmount),
	}, m.magic)
}

func (m *MintNative) Log() *types.Log {
	return MintNativeLog(m.magic.TxHash, m.magic.LogIndex, m.recipient, m.hostAmount)
}

func (m *MintNative) String() string {
	return fmt.Sprintf("MintNative(%s, %s)", m.recipient, m.MintAmount())
}

// MintToken mints a permissioned rollup token for a host deposit by calling
// mint(address,uint256) on the token from the minter address.
type MintToken struct {
	sysNonce
	recipient common.Address
	token     common.Address
	hostToken common.Address
	amount    *big.Int
	magic     magicsig.MagicSig
	chainID   uint64
}

// NewMintToken converts an EnterToken event into a mint of token, the rollup
// counterpart of the deposited host token.
func NewMintToken(ev extract.ExtractedEvent[*extract.EnterToken], token common.Address, chainID uint64) *MintToken {
	return &MintToken{
		recipient: ev.Event.RollupRecipient,
		token:     token,
		hostToken: ev.Event.Token,
		amount:    bigOrZero(ev.Event.Amount),
		magic:     magicsig.NewEnterToken(ev.TxHash, ev.LogIndex),
		chainID:   chainID,
	}
}

func (m *MintToken) unmetered() {}

func (m *MintToken) Sender() common.Address { return params.MinterAddress }
func (m *MintToken) Callee() common.Address { return m.token }
func (m *MintToken) Input() []byte          { return mintCall(m.recipient, m.amount) }
func (m *MintToken) Value() *big.Int        { return new(big.Int) }

func (m *MintToken) Transaction() *types.Transaction {
	to := m.token
	return withMagicSig(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(m.chainID),
		Nonce:     m.mustNonce(),
		GasTipCap: new(big.Int),
		GasFeeCap: new(big.Int),
		Gas:       UnmeteredGasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      m.Input(),
	}, m.magic)
}

func (m *MintToken) Log() *types.Log {
	return MintTokenLog(m.magic.TxHash, m.magic.LogIndex, m.recipient, m.hostToken, m.amount)
}

func (m *MintToken) String() string {
	return fmt.Sprintf("MintToken(%s, %s, %s)", m.token, m.recipient, m.amount)
}

// TransactSysTx is a host Transact event executed on the rollup on behalf of
// its sender.
type TransactSysTx struct {
	sysNonce
	event   *extract.Transact
	magic   magicsig.MagicSig
	chainID uint64
}

// NewTransactSysTx converts a Transact event.
func NewTransactSysTx(ev extract.ExtractedEvent[*extract.Transact], chainID uint64) *TransactSysTx {
	return &TransactSysTx{
		event:   ev.Event,
		magic:   magicsig.NewTransact(ev.TxHash, ev.LogIndex, ev.Event.Sender),
		chainID: chainID,
	}
}

func (t *TransactSysTx) Sender() common.Address { return t.event.Sender }
func (t *TransactSysTx) Callee() common.Address { return t.event.To }
func (t *TransactSysTx) Input() []byte          { return common.CopyBytes(t.event.Data) }
func (t *TransactSysTx) Value() *big.Int        { return bigOrZero(t.event.Value) }

// GasLimit is the declared gas of the event, saturated to 64 bits.
func (t *TransactSysTx) GasLimit() uint64 {
	gas := bigOrZero(t.event.Gas)
	if !gas.IsUint64() {
		return math.MaxUint64
	}
	return gas.Uint64()
}

func (t *TransactSysTx) MaxFeePerGas() *big.Int { return bigOrZero(t.event.MaxFeePerGas) }

func (t *TransactSysTx) Transaction() *types.Transaction {
	to := t.event.To
	return withMagicSig(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(t.chainID),
		Nonce:     t.mustNonce(),
		GasTipCap: new(big.Int),
		GasFeeCap: t.MaxFeePerGas(),
		Gas:       t.GasLimit(),
		To:        &to,
		Value:     t.Value(),
		Data:      t.Input(),
	}, t.magic)
}

func (t *TransactSysTx) Log() *types.Log {
	return TransactLog(t.magic.TxHash, t.magic.LogIndex, t.event.Sender,
		t.Value(), bigOrZero(t.event.Gas), t.MaxFeePerGas())
}

func (t *TransactSysTx) String() string {
	return fmt.Sprintf("Transact(%s -> %s, value %s, gas %d)", t.event.Sender, t.event.To, t.Value(), t.GasLimit())
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// toU256 converts v, saturating values that do not fit.
func toU256(v *big.Int) *uint256.Int {
	if v.Sign() <= 0 {
		return new(uint256.Int)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}
