// Package store 实现播放地址缓存、播放历史与收藏三类本地列表。
//
// 约束：
// - 每类数据在自己的 namespace 下只占一个 key，value 是整个 JSON 列表
// - 每次修改都是“读全量 -> 改 -> 写全量”；进程内由 mutex 串行化，跨进程仍是后写覆盖
// - 读到无法解码的内容视为空列表（记录 warn，不向上抛错）
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/store/kv"
)

// 各列表在 kv 中的位置。
const (
	NamespaceFavorites   = "favorites"
	KeyFavorites         = "favorites_list"
	NamespacePlayHistory = "play_history"
	KeyPlayHistory       = "history"
	NamespacePlayURL     = "play_url_cache"
	KeyPlayURL           = "url_cache"
)

type jsonList[T any] struct {
	kv        kv.Store
	namespace string
	key       string
	log       *log.Logger
}

func (l jsonList[T]) load() []T {
	b, ok, err := l.kv.Get(l.namespace, l.key)
	if err != nil {
		l.log.Warn("读取本地数据失败，按空列表处理", "namespace", l.namespace, "err", err)
		return []T{}
	}
	if !ok || len(b) == 0 {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		l.log.Warn("本地数据无法解码，按空列表处理", "namespace", l.namespace, "err", err)
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

func (l jsonList[T]) save(items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("编码 %s 失败：%w", l.namespace, err)
	}
	if err := l.kv.Put(l.namespace, l.key, b); err != nil {
		return fmt.Errorf("写入 %s 失败：%w", l.namespace, err)
	}
	return nil
}

func loggerOr(lg *log.Logger) *log.Logger {
	if lg == nil {
		return log.Default()
	}
	return lg
}

func nowMs(now func() time.Time) int64 { return now().UnixMilli() }
