package miner

import (
	"math/big"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/holiman/uint256"
	"github.com/signetlabs/signet-node/bundle"
	"github.com/signetlabs/signet-node/params"
)

// RankedItem is a cached item together with its rank.
type RankedItem struct {
	Rank uint256.Int
	Item *SimItem
}

// SimCache holds a bounded population of candidate items ordered by rank.
// Ranks are unique. An item that collides with an existing rank is placed
// at the next free rank below it.
//
// Items are admitted once: the identifiers of cached items are remembered,
// and items found to be never valid are kept in a bounded disallow list so
// that they are not re-admitted when resubmitted.
type SimCache struct {
	mu sync.RWMutex

	items map[uint256.Int]*SimItem
	ranks []uint256.Int // ascending
	seen  mapset.Set[string]

	disallowed *lru.Cache
	capacity   int
}

// NewSimCache returns an empty cache sized by config.
func NewSimCache(config params.SimConfig) *SimCache {
	size := config.DisallowSize
	if size <= 0 {
		size = params.DefaultSimConfig.DisallowSize
	}
	disallowed, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = params.DefaultSimConfig.Capacity
	}
	return &SimCache{
		items:      make(map[uint256.Int]*SimItem),
		seen:       mapset.NewThreadUnsafeSet[string](),
		disallowed: disallowed,
		capacity:   capacity,
	}
}

// Len returns the number of cached items.
func (c *SimCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Capacity returns the maximum number of cached items.
func (c *SimCache) Capacity() int { return c.capacity }

// Get returns the item at rank.
func (c *SimCache) Get(rank *uint256.Int) *SimItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[*rank]
}

// Disallowed reports whether id is on the disallow list.
func (c *SimCache) Disallowed(id string) bool {
	return c.disallowed.Contains(id)
}

// AddTx admits tx sent by sender, ranked at baseFee.
func (c *SimCache) AddTx(tx *types.Transaction, sender common.Address, baseFee *big.Int) {
	c.Add(NewTxItem(tx, sender), baseFee)
}

// AddBundle admits b, ranked at baseFee. Bundles without a replacement uuid
// are rejected.
func (c *SimCache) AddBundle(b *bundle.RecoveredBundle, baseFee *big.Int) error {
	item, err := NewBundleItem(b)
	if err != nil {
		return err
	}
	c.Add(item, baseFee)
	return nil
}

// Add admits item ranked at baseFee. Items already cached or disallowed are
// ignored. When the cache is full the lowest ranked item is evicted.
func (c *SimCache) Add(item *SimItem, baseFee *big.Int) {
	rank := item.TotalFee(baseFee)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(*rank, item)
	cacheSizeGauge.Update(int64(len(c.items)))
}

// AddAll admits items ranked at baseFee under a single lock.
func (c *SimCache) AddAll(items []*SimItem, baseFee *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		c.addLocked(*item.TotalFee(baseFee), item)
	}
	cacheSizeGauge.Update(int64(len(c.items)))
}

func (c *SimCache) addLocked(rank uint256.Int, item *SimItem) {
	id := item.Identifier()
	if c.seen.Contains(id) || c.disallowed.Contains(id) {
		log.Trace("Ignoring known sim item", "id", id)
		return
	}
	c.seen.Add(id)

	for !rank.IsZero() {
		if _, ok := c.items[rank]; !ok {
			break
		}
		rank.SubUint64(&rank, 1)
	}
	if len(c.items) >= c.capacity {
		c.removeLocked(c.ranks[0])
		cacheEvictedMeter.Mark(1)
	}
	// Only rank zero can still be taken; the newcomer replaces it.
	if _, ok := c.items[rank]; ok {
		c.removeLocked(rank)
	}
	c.items[rank] = item
	i := sort.Search(len(c.ranks), func(i int) bool { return !c.ranks[i].Lt(&rank) })
	c.ranks = append(c.ranks, uint256.Int{})
	copy(c.ranks[i+1:], c.ranks[i:])
	c.ranks[i] = rank
}

func (c *SimCache) removeLocked(rank uint256.Int) *SimItem {
	item, ok := c.items[rank]
	if !ok {
		return nil
	}
	delete(c.items, rank)
	i := sort.Search(len(c.ranks), func(i int) bool { return !c.ranks[i].Lt(&rank) })
	c.ranks = append(c.ranks[:i], c.ranks[i+1:]...)
	c.seen.Remove(item.Identifier())
	return item
}

func (c *SimCache) disallowLocked(rank uint256.Int) *SimItem {
	item := c.removeLocked(rank)
	if item != nil {
		c.disallowed.Add(item.Identifier(), struct{}{})
		cacheDisallowedMeter.Mark(1)
	}
	return item
}

// rankOf finds the rank id is cached at.
func (c *SimCache) rankOf(id string) (uint256.Int, bool) {
	if !c.seen.Contains(id) {
		return uint256.Int{}, false
	}
	for rank, item := range c.items {
		if item.Identifier() == id {
			return rank, true
		}
	}
	return uint256.Int{}, false
}

// Remove drops the item with identifier id. It may be admitted again later.
func (c *SimCache) Remove(id string) *SimItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	rank, ok := c.rankOf(id)
	if !ok {
		return nil
	}
	defer cacheSizeGauge.Update(int64(len(c.items)))
	return c.removeLocked(rank)
}

// RemoveAndDisallow drops the item with identifier id and refuses it from
// then on.
func (c *SimCache) RemoveAndDisallow(id string) *SimItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	rank, ok := c.rankOf(id)
	if !ok {
		return nil
	}
	defer cacheSizeGauge.Update(int64(len(c.items)))
	return c.disallowLocked(rank)
}

// ReadBest returns up to n items, highest rank first.
func (c *SimCache) ReadBest(n int) []RankedItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.ranks) {
		n = len(c.ranks)
	}
	best := make([]RankedItem, 0, n)
	for i := len(c.ranks) - 1; i >= 0 && len(best) < n; i-- {
		best = append(best, RankedItem{Rank: c.ranks[i], Item: c.items[c.ranks[i]]})
	}
	return best
}

// ReadBestValid returns up to n items that are includable now against the
// given rollup and host states, highest rank first. Items that can never
// become valid are evicted and disallowed. Items that may become valid
// later stay in the cache.
func (c *SimCache) ReadBestValid(n int, source, hostSource StateSource) []RankedItem {
	var (
		best  = make([]RankedItem, 0, n)
		never []uint256.Int
	)
	c.mu.RLock()
	for i := len(c.ranks) - 1; i >= 0 && len(best) < n; i-- {
		rank := c.ranks[i]
		item := c.items[rank]
		switch CheckItem(item, source, hostSource) {
		case ValidityNow:
			best = append(best, RankedItem{Rank: rank, Item: item})
		case ValidityNever:
			never = append(never, rank)
		}
	}
	c.mu.RUnlock()

	if len(never) == 0 {
		return best
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rank := range never {
		// The scan is unlocked by now; skip ranks whose occupant changed.
		if item, ok := c.items[rank]; ok && CheckItem(item, source, hostSource) == ValidityNever {
			log.Debug("Disallowing never valid sim item", "id", item.Identifier())
			c.disallowLocked(rank)
		}
	}
	cacheSizeGauge.Update(int64(len(c.items)))
	return best
}

// Clean prepares the cache for a block at number and timestamp. Items over
// capacity are disallowed, lowest rank first. Bundles that cannot land in
// the block are dropped, and disallowed if their window has passed.
func (c *SimCache) Clean(number, timestamp uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.items) > c.capacity {
		c.disallowLocked(c.ranks[0])
	}
	for rank, item := range c.items {
		b := item.Bundle()
		if b == nil || b.ValidAt(number, timestamp) {
			continue
		}
		if b.NeverValidAfter(number, timestamp) {
			log.Debug("Disallowing expired bundle", "id", item.Identifier(), "block", b.BlockNumber(), "number", number)
			c.disallowLocked(rank)
		} else {
			log.Trace("Dropping bundle not yet in window", "id", item.Identifier(), "block", b.BlockNumber(), "number", number)
			c.removeLocked(rank)
		}
	}
	cacheSizeGauge.Update(int64(len(c.items)))
}

// Clear empties the cache. The disallow list is kept.
func (c *SimCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[uint256.Int]*SimItem)
	c.ranks = nil
	c.seen.Clear()
	cacheSizeGauge.Update(0)
}
