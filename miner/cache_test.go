package miner

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/bundle"
	"github.com/signetlabs/signet-node/internal/testutil"
	"github.com/signetlabs/signet-node/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, log.LevelWarn, false)))
}

var (
	zero   = new(big.Int)
	signer = types.LatestSignerForChainID(new(big.Int).SetUint64(params.TestRollupChainID))
)

// feeTx returns an unsigned transaction ranking at gas*price with a zero
// base fee.
func feeTx(nonce, gas uint64, price int64) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(params.TestRollupChainID),
		Nonce:     nonce,
		Gas:       gas,
		GasTipCap: big.NewInt(price),
		GasFeeCap: big.NewInt(price),
	})
}

func feeItem(nonce, gas uint64, price int64) *SimItem {
	return NewTxItem(feeTx(nonce, gas, price), common.Address{})
}

func newCache(capacity int) *SimCache {
	config := params.DefaultSimConfig
	config.Capacity = capacity
	return NewSimCache(config)
}

func rank(v uint64) *uint256.Int { return uint256.NewInt(v) }

func signedBundle(t *testing.T, key *ecdsa.PrivateKey, id string, number uint64, txs ...*types.Transaction) *bundle.RecoveredBundle {
	t.Helper()
	signed := make(types.Transactions, len(txs))
	for i, tx := range txs {
		var err error
		signed[i], err = types.SignTx(tx, signer, key)
		require.NoError(t, err)
	}
	b, err := bundle.Encode(signed, nil, number)
	require.NoError(t, err)
	b.ReplacementUUID = id
	rb, err := b.Recover(signer, nil)
	require.NoError(t, err)
	return rb
}

func TestCacheCapacity(t *testing.T) {
	items := []*SimItem{feeItem(0, 100, 1), feeItem(0, 100, 2), feeItem(0, 100, 3)}
	cache := newCache(2)
	cache.AddAll(items, zero)

	assert.Equal(t, 2, cache.Len())
	assert.Same(t, items[2], cache.Get(rank(300)))
	assert.Same(t, items[1], cache.Get(rank(200)))
	assert.Nil(t, cache.Get(rank(100)))
}

func TestCacheCapacityBundles(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	ids := []string{
		"fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a",
		"39637ce4-5f33-4eb6-8893-8cc325a6cca3",
		"1c008717-b187-4e53-9601-25435f5fe8b7",
	}
	cache := newCache(2)
	for i, id := range ids {
		require.NoError(t, cache.AddBundle(signedBundle(t, key, id, 1, feeTx(0, 100, int64(i+1))), zero))
	}

	assert.Equal(t, 2, cache.Len())
	assert.Equal(t, ids[2], cache.Get(rank(300)).Identifier())
	assert.Equal(t, ids[1], cache.Get(rank(200)).Identifier())
	assert.Nil(t, cache.Get(rank(100)))
}

func TestCacheRankCollision(t *testing.T) {
	items := []*SimItem{feeItem(0, 100, 1), feeItem(1, 100, 1), feeItem(2, 100, 1)}
	cache := newCache(3)
	cache.AddAll(items, zero)

	require.Equal(t, 3, cache.Len())
	assert.Same(t, items[0], cache.Get(rank(100)))
	assert.Same(t, items[1], cache.Get(rank(99)))
	assert.Same(t, items[2], cache.Get(rank(98)))
}

func TestCacheCollisionAtZero(t *testing.T) {
	items := []*SimItem{feeItem(0, 1, 1), feeItem(1, 1, 1), feeItem(2, 1, 1)}
	cache := newCache(2)
	cache.AddAll(items, zero)

	// the third probes down to zero, evicts the lowest and takes its rank
	require.Equal(t, 2, cache.Len())
	assert.Same(t, items[0], cache.Get(rank(1)))
	assert.Same(t, items[2], cache.Get(rank(0)))
}

func TestCacheIgnoresDuplicates(t *testing.T) {
	item := feeItem(0, 100, 1)
	cache := newCache(10)
	cache.Add(item, zero)
	cache.Add(NewTxItem(item.Tx(), common.Address{}), zero)

	assert.Equal(t, 1, cache.Len())
	assert.Nil(t, cache.Get(rank(99)))
}

func TestCacheReadBest(t *testing.T) {
	cache := newCache(10)
	for _, price := range []int64{3, 1, 4, 2} {
		cache.Add(feeItem(0, 100, price), zero)
	}
	best := cache.ReadBest(3)
	require.Len(t, best, 3)
	assert.Equal(t, uint64(400), best[0].Rank.Uint64())
	assert.Equal(t, uint64(300), best[1].Rank.Uint64())
	assert.Equal(t, uint64(200), best[2].Rank.Uint64())

	assert.Len(t, cache.ReadBest(10), 4)
}

func TestCacheRemove(t *testing.T) {
	item := feeItem(0, 100, 1)
	cache := newCache(10)
	cache.Add(item, zero)

	assert.Same(t, item, cache.Remove(item.Identifier()))
	assert.Zero(t, cache.Len())
	assert.Nil(t, cache.Remove(item.Identifier()))

	// removal forgets the item, it may come back
	cache.Add(item, zero)
	assert.Equal(t, 1, cache.Len())

	cache.RemoveAndDisallow(item.Identifier())
	cache.Add(item, zero)
	assert.Zero(t, cache.Len())
	assert.True(t, cache.Disallowed(item.Identifier()))
}

func TestAddBundleRequiresUUID(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cache := newCache(10)
	err = cache.AddBundle(signedBundle(t, key, "", 1, feeTx(0, 100, 1)), zero)
	require.ErrorIs(t, err, bundle.ErrNoReplacementUUID)
	assert.Zero(t, cache.Len())
}

func TestCacheClean(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	past := signedBundle(t, key, "fbcbb9ce-2bef-4587-9c5f-61f606ca0a1a", 5, feeTx(0, 100, 1))
	current := signedBundle(t, key, "39637ce4-5f33-4eb6-8893-8cc325a6cca3", 6, feeTx(0, 100, 2))
	future := signedBundle(t, key, "1c008717-b187-4e53-9601-25435f5fe8b7", 7, feeTx(0, 100, 3))
	tx := feeItem(0, 100, 4)

	cache := newCache(10)
	for _, b := range []*bundle.RecoveredBundle{past, current, future} {
		require.NoError(t, cache.AddBundle(b, zero))
	}
	cache.Add(tx, zero)
	cache.Clean(6, 1_000)

	require.Equal(t, 2, cache.Len())
	assert.Same(t, tx, cache.Get(rank(400)))
	assert.Equal(t, current.ReplacementUUID(), cache.Get(rank(200)).Identifier())

	// the passed bundle is refused from now on, the early one is not
	assert.True(t, cache.Disallowed(past.ReplacementUUID()))
	assert.False(t, cache.Disallowed(future.ReplacementUUID()))
	require.NoError(t, cache.AddBundle(past, zero))
	require.NoError(t, cache.AddBundle(future, zero))
	assert.Equal(t, 3, cache.Len())
	assert.Nil(t, cache.Get(rank(100)))
}

func TestCacheCleanTrims(t *testing.T) {
	cache := newCache(2)
	a, b := feeItem(0, 100, 1), feeItem(0, 100, 2)
	cache.AddAll([]*SimItem{a, b}, zero)
	cache.capacity = 1
	cache.Clean(1, 1)

	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Disallowed(a.Identifier()))
	assert.Same(t, b, cache.Get(rank(200)))
}

func TestCacheReadBestValid(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sender := crypto.PubkeyToAddress(key.PublicKey)

	sdb := testutil.NewState()
	sdb.SetNonce(sender, 1, tracing.NonceChangeUnspecified)
	sdb.AddBalance(sender, uint256.NewInt(1_000_000), tracing.BalanceChangeUnspecified)

	stale := NewTxItem(feeTx(0, 100, 3), sender)
	early := NewTxItem(feeTx(2, 100, 2), sender)
	ready := NewTxItem(feeTx(1, 100, 1), sender)
	cache := newCache(10)
	cache.AddAll([]*SimItem{stale, early, ready}, zero)

	valid := cache.ReadBestValid(10, sdb, nil)
	require.Len(t, valid, 1)
	assert.Same(t, ready, valid[0].Item)

	assert.Equal(t, 2, cache.Len())
	assert.True(t, cache.Disallowed(stale.Identifier()))
	assert.False(t, cache.Disallowed(early.Identifier()))
	assert.Same(t, early, cache.Get(rank(200)))
}
