package store

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/store/kv"
)

// FavoriteStore 保存收藏；按 movie id 去重，不设上限。
type FavoriteStore struct {
	list jsonList[domain.Favorite]
	now  func() time.Time

	mu sync.Mutex
}

func NewFavoriteStore(s kv.Store, lg *log.Logger) *FavoriteStore {
	return &FavoriteStore{
		list: jsonList[domain.Favorite]{kv: s, namespace: NamespaceFavorites, key: KeyFavorites, log: loggerOr(lg)},
		now:  time.Now,
	}
}

// Save 收藏一部影片；已收藏时保持原位置与时间不变。
func (s *FavoriteStore) Save(m domain.Movie) error {
	m.ID = strings.TrimSpace(m.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.list.load()
	for _, f := range cur {
		if f.Movie.ID == m.ID {
			return nil
		}
	}
	out := make([]domain.Favorite, 0, len(cur)+1)
	out = append(out, domain.Favorite{Movie: m, TimestampMs: nowMs(s.now)})
	out = append(out, cur...)
	return s.list.save(out)
}

func (s *FavoriteStore) Remove(movieID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.list.load()
	out := make([]domain.Favorite, 0, len(cur))
	for _, f := range cur {
		if f.Movie.ID == movieID {
			continue
		}
		out = append(out, f)
	}
	return s.list.save(out)
}

func (s *FavoriteStore) IsFavorite(movieID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.list.load() {
		if f.Movie.ID == movieID {
			return true
		}
	}
	return false
}

// Toggle 切换收藏状态，返回切换后的状态。
func (s *FavoriteStore) Toggle(m domain.Movie) (bool, error) {
	if s.IsFavorite(m.ID) {
		return false, s.Remove(m.ID)
	}
	return true, s.Save(m)
}

func (s *FavoriteStore) List() []domain.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.load()
}

func (s *FavoriteStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.save(nil)
}
