package store

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/store/kv"
)

// DefaultPlayURLTTL 是播放地址缓存的有效期。
const DefaultPlayURLTTL = 7 * 24 * time.Hour

// PlayURLCache 缓存每部影片的“剧集 URL -> 播放地址”映射。
//
// 约束：
// - 同一 movieID 至多一条；Put 是替换而不是合并
// - 过期条目在下一次 Get/Put 时惰性清理
type PlayURLCache struct {
	list jsonList[domain.PlayURLEntry]
	ttl  time.Duration
	now  func() time.Time

	mu sync.Mutex
}

// NewPlayURLCache 构造缓存；ttl<=0 时使用 DefaultPlayURLTTL。
func NewPlayURLCache(s kv.Store, ttl time.Duration, lg *log.Logger) *PlayURLCache {
	if ttl <= 0 {
		ttl = DefaultPlayURLTTL
	}
	return &PlayURLCache{
		list: jsonList[domain.PlayURLEntry]{kv: s, namespace: NamespacePlayURL, key: KeyPlayURL, log: loggerOr(lg)},
		ttl:  ttl,
		now:  time.Now,
	}
}

func (c *PlayURLCache) expired(e domain.PlayURLEntry, now int64) bool {
	return now-e.TimestampMs > c.ttl.Milliseconds()
}

func (c *PlayURLCache) sweep(entries []domain.PlayURLEntry, now int64) ([]domain.PlayURLEntry, int) {
	out := entries[:0:0]
	for _, e := range entries {
		if c.expired(e, now) {
			continue
		}
		out = append(out, e)
	}
	return out, len(entries) - len(out)
}

// Get 返回 movieID 未过期的映射。
func (c *PlayURLCache) Get(movieID string) (map[string]string, bool) {
	movieID = strings.TrimSpace(movieID)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := nowMs(c.now)
	entries, evicted := c.sweep(c.list.load(), now)
	if evicted > 0 {
		if err := c.list.save(entries); err != nil {
			c.list.log.Warn("清理过期播放地址失败", "err", err)
		} else {
			c.list.log.Debug("已清理过期播放地址", "evicted", evicted)
		}
	}

	if movieID == "" {
		return nil, false
	}
	for _, e := range entries {
		if e.MovieID == movieID {
			return e.URLs, true
		}
	}
	return nil, false
}

// Put 写入 movieID 的完整映射（替换旧条目，插入到最前）。
func (c *PlayURLCache) Put(movieID string, urls map[string]string) error {
	movieID = strings.TrimSpace(movieID)
	c.mu.Lock()
	defer c.mu.Unlock()

	now := nowMs(c.now)
	entries, _ := c.sweep(c.list.load(), now)

	kept := make([]domain.PlayURLEntry, 0, len(entries)+1)
	cp := make(map[string]string, len(urls))
	for k, v := range urls {
		cp[k] = v
	}
	kept = append(kept, domain.PlayURLEntry{MovieID: movieID, URLs: cp, TimestampMs: now})
	for _, e := range entries {
		if e.MovieID == movieID {
			continue
		}
		kept = append(kept, e)
	}
	return c.list.save(kept)
}

// Clear 清空全部缓存。
func (c *PlayURLCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.save(nil)
}
