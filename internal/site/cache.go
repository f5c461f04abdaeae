package site

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type pageItem struct {
	body      []byte
	expiredAt time.Time
}

// pageCache 是带 TTL 的页面 LRU（进程内，重启即失效）。
type pageCache struct {
	storage *lru.Cache[string, pageItem]
	ttl     time.Duration
	now     func() time.Time
}

func newPageCache(size int, ttl time.Duration) *pageCache {
	if size <= 0 {
		size = 256
	}
	// lru.New 只在 size<=0 时返回错误。
	c, _ := lru.New[string, pageItem](size)
	return &pageCache{storage: c, ttl: ttl, now: time.Now}
}

func (c *pageCache) get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	it, ok := c.storage.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().After(it.expiredAt) {
		c.storage.Remove(key)
		return nil, false
	}
	return it.body, true
}

func (c *pageCache) set(key string, body []byte) {
	if c == nil {
		return
	}
	c.storage.Add(key, pageItem{body: body, expiredAt: c.now().Add(c.ttl)})
}

func (c *pageCache) purge() {
	if c == nil {
		return
	}
	c.storage.Purge()
}
