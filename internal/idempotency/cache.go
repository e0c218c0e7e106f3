package idempotency

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lruCache is a process-local, bounded cache of recently completed records.
// Correctness of the middleware never depends on its contents — it exists
// purely to avoid a store round-trip on a warm re-invocation within the same
// process — so a nil *lruCache (UseLocalCache disabled) is always a safe,
// valid value everywhere it is used.
type lruCache struct {
	inner *lru.Cache[string, DataRecord]
}

// newLRUCache returns a cache bounded to maxItems. maxItems must be
// positive; Config.validate already enforces that before this is called.
func newLRUCache(maxItems int) (*lruCache, error) {
	inner, err := lru.New[string, DataRecord](maxItems)
	if err != nil {
		return nil, err
	}
	return &lruCache{inner: inner}, nil
}

// get returns the cached record for key if present and not expired at now.
// An expired entry is evicted on lookup rather than left to be overwritten
// later, keeping the cache from accumulating stale completed rows for keys
// that are never revisited.
func (c *lruCache) get(key string, now time.Time) (DataRecord, bool) {
	if c == nil {
		return DataRecord{}, false
	}
	rec, ok := c.inner.Get(key)
	if !ok {
		return DataRecord{}, false
	}
	if rec.Expired(now) {
		c.inner.Remove(key)
		return DataRecord{}, false
	}
	return rec, true
}

// add inserts or refreshes a completed record.
func (c *lruCache) add(record DataRecord) {
	if c == nil {
		return
	}
	c.inner.Add(record.IdempotencyKey, record)
}

// remove evicts key. The handler calls it after a failed execution, when the
// store row for key has just been deleted.
func (c *lruCache) remove(key string) {
	if c == nil {
		return
	}
	c.inner.Remove(key)
}
