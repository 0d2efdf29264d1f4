package decompose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize is the plan cache capacity when not configured.
const defaultCacheSize = 128

// planCache is an advisory LRU of validated plans keyed by strategy
// name plus a signature of the normalized task input. Entries are
// stored and served as clones so execution never mutates cached plans.
// Any cache failure falls through to recomputation.
type planCache struct {
	lru *lru.Cache[string, *Plan]
}

// newPlanCache creates a cache of the given capacity; size <= 0
// disables caching entirely.
func newPlanCache(size int) *planCache {
	if size <= 0 {
		return &planCache{}
	}
	c, err := lru.New[string, *Plan](size)
	if err != nil {
		return &planCache{}
	}
	return &planCache{lru: c}
}

func (c *planCache) get(key string) (*Plan, bool) {
	if c == nil || c.lru == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

func (c *planCache) put(key string, plan *Plan) {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Add(key, plan)
}

func (c *planCache) len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// cacheKey builds the cache key for a strategy and task input.
// encoding/json marshals map keys in sorted order, so the signature is
// canonical for semantically identical inputs. Inputs that fail to
// marshal are simply not cached.
func cacheKey(strategy string, input map[string]any) (string, bool) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return strategy + ":" + hex.EncodeToString(sum[:]), true
}
