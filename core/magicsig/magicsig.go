// Package magicsig encodes host-chain event metadata into the signature slot
// of synthetic rollup transactions.
//
// Layout:
//
//	v         reserved, always 0
//	r         32-byte hash of the host transaction that emitted the event
//	s[0:4]    sentinel 0xffeeddcc
//	s[4:8]    big-endian log index of the event within that transaction
//	s[8]      kind flag (0x01 Enter, 0x02 EnterToken, 0x03 Transact)
//	s[9:12]   reserved
//	s[12:32]  sender address for Transact, reserved otherwise
//
// The sentinel makes s larger than secp256k1n/2, so a magic signature is
// never a valid EIP-2 signature and recovery through a types.Signer fails.
package magicsig

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/signetlabs/signet-node/params"
)

var sentinel = [4]byte{0xff, 0xee, 0xdd, 0xcc}

// Kind identifies the host event that produced a synthetic transaction.
type Kind uint8

const (
	Enter      Kind = 0x01
	EnterToken Kind = 0x02
	Transact   Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case Enter:
		return "enter"
	case EnterToken:
		return "enterToken"
	case Transact:
		return "transact"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MagicSig is the decoded form of a magic signature.
type MagicSig struct {
	Kind     Kind
	TxHash   common.Hash    // host transaction hash
	LogIndex uint32         // index of the event in the host tx's logs
	Sender   common.Address // only meaningful for Transact
}

// NewEnter returns the signature for an Enter event.
func NewEnter(txHash common.Hash, logIndex uint32) MagicSig {
	return MagicSig{Kind: Enter, TxHash: txHash, LogIndex: logIndex}
}

// NewEnterToken returns the signature for an EnterToken event.
func NewEnterToken(txHash common.Hash, logIndex uint32) MagicSig {
	return MagicSig{Kind: EnterToken, TxHash: txHash, LogIndex: logIndex}
}

// NewTransact returns the signature for a Transact event from sender.
func NewTransact(txHash common.Hash, logIndex uint32, sender common.Address) MagicSig {
	return MagicSig{Kind: Transact, TxHash: txHash, LogIndex: logIndex, Sender: sender}
}

// From returns the effective sender of the synthetic transaction. Mints are
// attributed to the minter.
func (m MagicSig) From() common.Address {
	if m.Kind == Transact {
		return m.Sender
	}
	return params.MinterAddress
}

func (m MagicSig) s() [32]byte {
	var s [32]byte
	copy(s[0:4], sentinel[:])
	binary.BigEndian.PutUint32(s[4:8], m.LogIndex)
	s[8] = byte(m.Kind)
	if m.Kind == Transact {
		copy(s[12:32], m.Sender[:])
	}
	return s
}

// SignatureValues returns the signature as the raw v, r, s values carried by
// a typed transaction.
func (m MagicSig) SignatureValues() (v, r, s *big.Int) {
	sb := m.s()
	return new(big.Int), new(big.Int).SetBytes(m.TxHash[:]), new(big.Int).SetBytes(sb[:])
}

// Bytes returns the 65-byte [R || S || V] form of the signature.
func (m MagicSig) Bytes() []byte {
	sig := make([]byte, 65)
	copy(sig[:32], m.TxHash[:])
	sb := m.s()
	copy(sig[32:64], sb[:])
	return sig
}

// FromSignatureValues decodes raw signature values. It reports false if the
// values do not carry a magic signature.
func FromSignatureValues(v, r, s *big.Int) (MagicSig, bool) {
	if v == nil || r == nil || s == nil || v.Sign() != 0 {
		return MagicSig{}, false
	}
	if r.BitLen() > 256 || s.BitLen() > 256 {
		return MagicSig{}, false
	}
	var sb [32]byte
	s.FillBytes(sb[:])
	if [4]byte(sb[0:4]) != sentinel {
		return MagicSig{}, false
	}
	m := MagicSig{
		Kind:     Kind(sb[8]),
		LogIndex: binary.BigEndian.Uint32(sb[4:8]),
	}
	r.FillBytes(m.TxHash[:])
	switch m.Kind {
	case Enter, EnterToken:
	case Transact:
		copy(m.Sender[:], sb[12:32])
	default:
		return MagicSig{}, false
	}
	return m, true
}

// FromTransaction extracts the magic signature of tx, if any.
func FromTransaction(tx *types.Transaction) (MagicSig, bool) {
	return FromSignatureValues(tx.RawSignatureValues())
}

// Sender resolves the sender of tx, falling back to signature recovery when
// tx does not carry a magic signature.
func Sender(signer types.Signer, tx *types.Transaction) (common.Address, error) {
	if m, ok := FromTransaction(tx); ok {
		return m.From(), nil
	}
	return types.Sender(signer, tx)
}
