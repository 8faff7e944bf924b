package chainmgr

import (
	"math/big"
	"path/filepath"
	"sync"

	"github.com/decred/dcrd/lru"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meowcoin-foundation/meowheaders/chainhash"
	"github.com/meowcoin-foundation/meowheaders/pow"
)

// workCacheCapacity bounds the hot in-memory tier; entries are re-derivable
// from the durable tier or by rescanning, so LRU eviction is safe.
const workCacheCapacity = 4096

// workCache is the process-wide (hash -> cumulative chain-work) cache,
// filled at 2016-block boundaries. It is two-tier: a hot
// github.com/decred/dcrd/lru map in front of a durable goleveldb database,
// so a long-lived wallet daemon keeps its cache across restarts. Entries
// are re-derivable from the headers themselves, so eviction and lost L2
// writes only cost a rescan, never correctness.
type workCache struct {
	mu sync.Mutex
	l1 lru.KVCache
	l2 *leveldb.DB
}

func newWorkCache(dir string) (*workCache, error) {
	db, err := leveldb.OpenFile(filepath.Join(dir, "chainwork.ldb"), nil)
	if err != nil {
		return nil, err
	}
	return &workCache{
		l1: lru.NewKVCache(workCacheCapacity),
		l2: db,
	}, nil
}

func (c *workCache) close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Close()
}

// get returns the cumulative chain-work recorded for hash, if any.
func (c *workCache) get(hash chainhash.Hash) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.l1.Lookup(hash); ok {
		return v.(*big.Int), true
	}
	raw, err := c.l2.Get(hash[:], nil)
	if err != nil {
		return nil, false
	}
	w := new(big.Int).SetBytes(raw)
	c.l1.Add(hash, w)
	return w, true
}

// put records the cumulative chain-work up to and including hash. Filling
// is idempotent: two concurrent fills for the same hash compute the same
// value, so put never needs to check for an existing entry.
func (c *workCache) put(hash chainhash.Hash, work *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.l1.Add(hash, work)
	// Best-effort: an L2 write failure only costs a future backward rescan,
	// never correctness.
	_ = c.l2.Put(hash[:], work.Bytes(), nil)
}

// seedGenesis primes the cache with the two entries no header record can
// supply: zero work for the virtual block before height 0 (the all-zero
// hash), and the genesis block's own work, computed from the network's
// genesis bits so cumulative work is answerable even while the height-0
// slot is still a preallocated empty record.
func (c *workCache) seedGenesis(genesis chainhash.Hash, genesisBits uint32) {
	c.put(chainhash.Hash{}, big.NewInt(0))
	if w, err := pow.CalcWorkForBits(genesisBits); err == nil {
		c.put(genesis, w)
	}
}
