package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// ErrNoCurrentMovie 表示需要当前影片的操作在未打开影片时被调用。
var ErrNoCurrentMovie = errors.New("当前没有打开的影片")

// LoadHistories 读取历史并发布；缺少必填字段的记录会被清理并写回。
// Movies 为空时用历史填充（首页“继续观看”）。
func (s *Session) LoadHistories() error {
	all := s.history.List()
	valid := make([]domain.PlayHistory, 0, len(all))
	for _, h := range all {
		if h.Complete() {
			valid = append(valid, h)
		}
	}
	if len(valid) != len(all) {
		s.log.Warn("清理不完整的历史记录", "dropped", len(all)-len(valid))
		if err := s.history.Replace(valid); err != nil {
			s.log.Error("写回历史失败", "err", err)
			return fmt.Errorf("写回历史: %w", err)
		}
	}

	s.update(func(st *State) {
		st.Histories = valid
		if len(st.Movies) == 0 && len(valid) > 0 {
			movies := make([]domain.Movie, 0, len(valid))
			for _, h := range valid {
				movies = append(movies, h.AsMovie())
			}
			st.Movies = movies
		}
	})
	return nil
}

// SaveHistory 以当前影片的标题/封面写入一条历史并刷新 Histories。
func (s *Session) SaveHistory(movieID, episodeName, episodeURL string, positionMs int64) error {
	movieID = strings.TrimSpace(movieID)
	if movieID == "" {
		return errors.New("影片 id 为空")
	}
	s.mu.Lock()
	cur := s.state.CurrentMovie
	var d domain.MovieDetail
	if cur != nil {
		d = *cur
	}
	s.mu.Unlock()
	if cur == nil {
		return ErrNoCurrentMovie
	}
	if d.ID != movieID {
		return fmt.Errorf("影片 %s 不是当前影片（当前 %s）", movieID, d.ID)
	}
	return s.saveHistoryFor(d, episodeName, episodeURL, positionMs)
}

func (s *Session) saveHistoryFor(d domain.MovieDetail, episodeName, episodeURL string, positionMs int64) error {
	h := domain.PlayHistory{
		MovieID:            d.ID,
		MovieTitle:         d.Title,
		MovieCoverURL:      d.CoverURL,
		EpisodeName:        episodeName,
		EpisodeURL:         episodeURL,
		PlaybackPositionMs: positionMs,
	}
	if err := s.history.Save(h); err != nil {
		s.log.Error("保存历史失败", "movie", d.ID, "err", err)
		return fmt.Errorf("保存历史: %w", err)
	}
	s.log.Debug("历史已保存", "movie", d.ID, "episode", episodeName, "position_ms", positionMs)
	list := s.history.List()
	s.update(func(st *State) { st.Histories = list })
	return nil
}

// History 返回某部影片的观看记录（续播用）。
func (s *Session) History(movieID string) (domain.PlayHistory, bool) {
	return s.history.Get(strings.TrimSpace(movieID))
}

// DeleteHistory 删除一部影片的历史并重新加载。
func (s *Session) DeleteHistory(movieID string) error {
	if err := s.history.Delete(movieID); err != nil {
		s.log.Error("删除历史失败", "movie", movieID, "err", err)
		return fmt.Errorf("删除历史: %w", err)
	}
	return s.LoadHistories()
}

// ClearHistories 清空历史并重新加载。
func (s *Session) ClearHistories() error {
	if err := s.history.Clear(); err != nil {
		s.log.Error("清空历史失败", "err", err)
		return fmt.Errorf("清空历史: %w", err)
	}
	return s.LoadHistories()
}

// LoadFavorites 读取收藏并发布。
func (s *Session) LoadFavorites() {
	list := s.favorites.List()
	s.update(func(st *State) { st.Favorites = list })
}

// ToggleFavorite 切换收藏状态，返回切换后是否为已收藏。
func (s *Session) ToggleFavorite(m domain.Movie) (bool, error) {
	if strings.TrimSpace(m.ID) == "" {
		return false, errors.New("影片 id 为空")
	}
	on, err := s.favorites.Toggle(m)
	if err != nil {
		s.log.Error("切换收藏失败", "movie", m.ID, "err", err)
		return false, fmt.Errorf("切换收藏: %w", err)
	}
	s.log.Info("收藏已切换", "movie", m.ID, "favorite", on)
	s.LoadFavorites()
	return on, nil
}

// IsFavorite 判断影片是否已收藏。
func (s *Session) IsFavorite(movieID string) bool {
	return s.favorites.IsFavorite(movieID)
}

// ClearFavorites 清空收藏并重新加载。
func (s *Session) ClearFavorites() error {
	if err := s.favorites.Clear(); err != nil {
		s.log.Error("清空收藏失败", "err", err)
		return fmt.Errorf("清空收藏: %w", err)
	}
	s.LoadFavorites()
	return nil
}
