package miner

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/signetlabs/signet-node/core/orders"
)

// BuiltBlock is the content of a block assembled by the simulator: the
// accepted transactions in order and the host fills of accepted bundles.
type BuiltBlock struct {
	hostFills    []*orders.SignedFill
	transactions types.Transactions
	gasUsed      uint64
	hostGasUsed  uint64

	// memoized, reset on ingest
	raw    []byte
	hash   *common.Hash
	txRoot *common.Hash
}

func NewBuiltBlock() *BuiltBlock { return new(BuiltBlock) }

func (b *BuiltBlock) GasUsed() uint64                  { return b.gasUsed }
func (b *BuiltBlock) HostGasUsed() uint64              { return b.hostGasUsed }
func (b *BuiltBlock) TxCount() int                     { return len(b.transactions) }
func (b *BuiltBlock) IsEmpty() bool                    { return len(b.transactions) == 0 }
func (b *BuiltBlock) Transactions() types.Transactions { return b.transactions }
func (b *BuiltBlock) HostFills() []*orders.SignedFill  { return b.hostFills }

func (b *BuiltBlock) unseal() {
	b.raw, b.hash, b.txRoot = nil, nil, nil
}

// IngestTx appends a transaction.
func (b *BuiltBlock) IngestTx(tx *types.Transaction) {
	log.Trace("Ingesting transaction", "hash", tx.Hash())
	b.unseal()
	b.transactions = append(b.transactions, tx)
}

// Ingest appends a simulated item.
func (b *BuiltBlock) Ingest(out *SimOutcome) {
	b.gasUsed += out.GasUsed
	b.hostGasUsed += out.HostGasUsed
	b.unseal()
	// Transactions of a bundle that were allowed to fail their fill check
	// are not in the outcomes and are left out of the block.
	for _, o := range out.Outcomes {
		b.transactions = append(b.transactions, o.Tx)
	}
	if out.Item.IsBundle() {
		b.hostFills = append(b.hostFills, out.Item.Bundle().HostFills()...)
	}
}

// Encode returns the RLP encoding of the transaction list.
func (b *BuiltBlock) Encode() []byte {
	if b.raw == nil {
		raw, err := rlp.EncodeToBytes(b.transactions)
		if err != nil {
			// Decoded transactions always re-encode.
			panic(err)
		}
		b.raw = raw
	}
	return b.raw
}

// ContentsHash is keccak256 of the encoded transaction list.
func (b *BuiltBlock) ContentsHash() common.Hash {
	if b.hash == nil {
		h := crypto.Keccak256Hash(b.Encode())
		b.hash = &h
	}
	return *b.hash
}

// TxRoot is the transaction trie root of the block.
func (b *BuiltBlock) TxRoot() common.Hash {
	if b.txRoot == nil {
		root := types.DeriveSha(b.transactions, trie.NewStackTrie(nil))
		b.txRoot = &root
	}
	return *b.txRoot
}

// idleWait is how long a build waits for the cache to change after a round
// without a winner.
const idleWait = 10 * time.Millisecond

// BlockBuild builds one block by running simulation rounds until its
// deadline.
type BlockBuild struct {
	env   *SimEnv
	block *BuiltBlock

	finishBy   time.Time
	maxGas     uint64
	maxHostGas uint64
}

func NewBlockBuild(env *SimEnv, finishBy time.Time, maxGas, maxHostGas uint64) *BlockBuild {
	return &BlockBuild{
		env:        env,
		block:      NewBuiltBlock(),
		finishBy:   finishBy,
		maxGas:     maxGas,
		maxHostGas: maxHostGas,
	}
}

func remaining(budget, used uint64) uint64 {
	if used >= budget {
		return 0
	}
	return budget - used
}

func (b *BlockBuild) round() (bool, error) {
	out, err := b.env.SimRound(
		remaining(b.maxGas, b.block.GasUsed()),
		remaining(b.maxHostGas, b.block.HostGasUsed()),
		b.finishBy,
	)
	if err != nil || out == nil {
		return false, err
	}
	log.Debug("Adding item to block", "id", out.Item.Identifier(), "score", out.Score, "gas", out.GasUsed)
	b.block.Ingest(out)
	return true, nil
}

// Build runs rounds until the deadline passes or ctx is done, and returns
// the block. A database error aborts the build.
func (b *BlockBuild) Build(ctx context.Context) (*BuiltBlock, error) {
	for {
		left := time.Until(b.finishBy)
		if left <= 0 || ctx.Err() != nil {
			break
		}
		won, err := b.round()
		if err != nil {
			return nil, err
		}
		if won {
			continue
		}
		wait := time.NewTimer(min(idleWait, left))
		select {
		case <-ctx.Done():
		case <-wait.C:
		}
		wait.Stop()
	}
	log.Info("Built block", "number", b.env.Env().Number, "txs", b.block.TxCount(),
		"gas", b.block.GasUsed(), "hostGas", b.block.HostGasUsed(), "hostFills", len(b.block.HostFills()))
	return b.block, nil
}
