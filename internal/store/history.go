package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/store/kv"
)

// HistoryStore 保存最近播放记录。
//
// 约束：
// - 去重键为 movieID（同一部影片只保留最近一次，不区分剧集）
// - 总数不超过 domain.MaxHistory，超出时淘汰最旧的
type HistoryStore struct {
	list jsonList[domain.PlayHistory]
	now  func() time.Time

	mu sync.Mutex
}

func NewHistoryStore(s kv.Store, lg *log.Logger) *HistoryStore {
	return &HistoryStore{
		list: jsonList[domain.PlayHistory]{kv: s, namespace: NamespacePlayHistory, key: KeyPlayHistory, log: loggerOr(lg)},
		now:  time.Now,
	}
}

// Save 写入一条历史：移除同一影片的旧记录，插到最前，再截断到上限。
// TimestampMs 为 0 时填当前时间。
func (s *HistoryStore) Save(h domain.PlayHistory) error {
	h.MovieID = strings.TrimSpace(h.MovieID)
	if h.TimestampMs == 0 {
		h.TimestampMs = nowMs(s.now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, _ := normalizeHistories(s.list.load())
	out := make([]domain.PlayHistory, 0, len(cur)+1)
	out = append(out, h)
	for _, old := range cur {
		if old.MovieID == h.MovieID {
			continue
		}
		out = append(out, old)
	}
	if len(out) > domain.MaxHistory {
		out = out[:domain.MaxHistory]
	}
	return s.list.save(out)
}

// List 返回按时间倒序的历史；发现重复/超量时顺带把清理结果写回。
func (s *HistoryStore) List() []domain.PlayHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, changed := normalizeHistories(s.list.load())
	if changed {
		if err := s.list.save(out); err != nil {
			s.list.log.Warn("回写去重后的历史失败", "err", err)
		} else {
			s.list.log.Debug("历史已去重回写", "count", len(out))
		}
	}
	return out
}

// Get 返回某部影片的历史（用于续播）。
func (s *HistoryStore) Get(movieID string) (domain.PlayHistory, bool) {
	for _, h := range s.List() {
		if h.MovieID == movieID {
			return h, true
		}
	}
	return domain.PlayHistory{}, false
}

// Replace 整体覆盖历史（加载时剔除坏记录后回写）。
func (s *HistoryStore) Replace(items []domain.PlayHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, _ := normalizeHistories(items)
	return s.list.save(out)
}

func (s *HistoryStore) Delete(movieID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.list.load()
	out := make([]domain.PlayHistory, 0, len(cur))
	for _, h := range cur {
		if h.MovieID == movieID {
			continue
		}
		out = append(out, h)
	}
	if len(out) == len(cur) {
		return nil
	}
	return s.list.save(out)
}

func (s *HistoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.kv.Delete(s.list.namespace, s.list.key)
}

// normalizeHistories 按 movieID 保留时间戳最大的一条，按时间倒序，截断到上限。
// changed 表示结果与输入不一致（需要回写）。
func normalizeHistories(in []domain.PlayHistory) (out []domain.PlayHistory, changed bool) {
	best := make(map[string]int, len(in))
	out = make([]domain.PlayHistory, 0, len(in))
	for _, h := range in {
		if i, ok := best[h.MovieID]; ok {
			if h.TimestampMs > out[i].TimestampMs {
				out[i] = h
			}
			continue
		}
		best[h.MovieID] = len(out)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimestampMs > out[j].TimestampMs })
	if len(out) > domain.MaxHistory {
		out = out[:domain.MaxHistory]
	}

	if len(out) != len(in) {
		return out, true
	}
	for i := range out {
		if out[i] != in[i] {
			return out, true
		}
	}
	return out, false
}
