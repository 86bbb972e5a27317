package api

import (
	"net/url"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// reportCache memoizes report results by route and normalized query string.
type reportCache struct {
	c *cache.Cache

	// gen is bumped on every flush. A result computed across a flush is
	// returned to its caller but never stored.
	mu  sync.Mutex
	gen uint64
}

func newReportCache(ttl time.Duration) *reportCache {
	if ttl <= 0 {
		return &reportCache{}
	}
	return &reportCache{c: cache.New(ttl, 2*ttl)}
}

// reportKey builds a key that does not depend on parameter order.
func reportKey(route string, q url.Values) string {
	return route + "?" + q.Encode()
}

func (rc *reportCache) get(key string, compute func() (any, error)) (any, error) {
	if rc.c == nil {
		return compute()
	}
	if v, found := rc.c.Get(key); found {
		return v, nil
	}
	rc.mu.Lock()
	gen := rc.gen
	rc.mu.Unlock()

	v, err := compute()
	if err != nil {
		return nil, err
	}

	rc.mu.Lock()
	if rc.gen == gen {
		rc.c.SetDefault(key, v)
	}
	rc.mu.Unlock()
	return v, nil
}

func (rc *reportCache) flush() {
	if rc.c == nil {
		return
	}
	rc.mu.Lock()
	rc.gen++
	rc.c.Flush()
	rc.mu.Unlock()
}

func (rc *reportCache) len() int {
	if rc.c == nil {
		return 0
	}
	return rc.c.ItemCount()
}
