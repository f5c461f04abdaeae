package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/episode"
	"github.com/John-Robertt/jianpian/internal/parser"
)

// OpenMovie 打开详情页并发布为当前影片，然后准备全部剧集的播放地址：
// 命中缓存直接发布；否则逐集解析、每集发布进度，最后整体写入缓存。
//
// 约束：同一 id 的并发打开共享一次执行；空 id 为 no-op。
func (s *Session) OpenMovie(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.shared(ctx, "open:"+id, func(ctx context.Context) error {
		return s.openMovie(ctx, id)
	})
}

// OpenDetail 只加载详情页并发布为当前影片，不解析剧集；
// 缓存里已有的播放地址会一并发布。
func (s *Session) OpenDetail(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.shared(ctx, "detail:"+id, func(ctx context.Context) error {
		done := s.beginLoading()
		defer done()

		d, err := s.loadDetail(ctx, id)
		if err != nil {
			return err
		}
		if urls, ok := s.playURLs.Get(id); ok {
			s.publishURLs(id, urls, len(d.Episodes))
		}
		return nil
	})
}

func (s *Session) openMovie(ctx context.Context, id string) error {
	done := s.beginLoading()
	defer done()

	d, err := s.loadDetail(ctx, id)
	if err != nil {
		return err
	}
	total := len(d.Episodes)

	if urls, ok := s.playURLs.Get(id); ok {
		s.log.Info("播放地址命中缓存", "movie", id, "count", len(urls))
		s.publishURLs(id, urls, total)
		if s.obs != nil {
			s.obs.OnResolveDone(id, len(urls), total, 0, true)
		}
		return nil
	}

	urls, err := s.resolveAll(ctx, d)
	if err != nil {
		return err
	}
	if err := s.playURLs.Put(id, urls); err != nil {
		s.log.Warn("写入播放地址缓存失败", "movie", id, "err", err)
	}
	s.publishURLs(id, urls, total)
	return nil
}

// loadDetail 请求并解析详情页，发布为当前影片并清空上一部的播放状态。
func (s *Session) loadDetail(ctx context.Context, id string) (domain.MovieDetail, error) {
	b, err := s.site.Detail(ctx, id)
	if err != nil {
		s.log.Error("加载详情失败", "movie", id, "err", err)
		return domain.MovieDetail{}, fmt.Errorf("加载详情 %s: %w", id, err)
	}
	d := parser.ParseMovieDetail(b)
	if d.ID != id {
		if d.ID != "" {
			s.log.Debug("详情页 id 与请求不一致，以请求为准", "requested", id, "parsed", d.ID)
		}
		d.ID = id
	}
	total := len(d.Episodes)
	s.update(func(st *State) {
		cur := d
		st.CurrentMovie = &cur
		st.CurrentPlayURL = ""
		st.PlayURLs = nil
		st.CacheProgress = 0
		st.CacheTotal = total
	})
	return d, nil
}

// RefreshURLs 无条件重新解析全部剧集并覆盖缓存（缓存键为 detail.ID）。
func (s *Session) RefreshURLs(ctx context.Context, d domain.MovieDetail) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return errors.New("影片 id 为空")
	}
	total := len(d.Episodes)
	return s.shared(ctx, "refresh:"+d.ID, func(ctx context.Context) error {
		done := s.beginLoading()
		defer done()

		s.updateIf(isCurrent(d.ID), func(st *State) {
			st.CacheProgress = 0
			st.CacheTotal = total
		})
		urls, err := s.resolveAll(ctx, d)
		if err != nil {
			return err
		}
		if err := s.playURLs.Put(d.ID, urls); err != nil {
			s.log.Warn("写入播放地址缓存失败", "movie", d.ID, "err", err)
		}
		s.publishURLs(d.ID, urls, total)
		return nil
	})
}

// PlayURL 返回单集的播放地址并发布为 CurrentPlayURL；任何失败返回空串。
// 当前影片已解析出的地址优先使用，不再请求站点。
func (s *Session) PlayURL(ctx context.Context, episodeURL string) string {
	episodeURL = strings.TrimSpace(episodeURL)
	if episodeURL == "" {
		return ""
	}
	s.mu.Lock()
	u := s.state.PlayURLs[episodeURL]
	s.mu.Unlock()
	if u == "" {
		u = s.resolve(ctx, episodeURL)
	}
	s.update(func(st *State) { st.CurrentPlayURL = u })
	return u
}

// NextEpisode 返回当前影片中 episodeURL 的下一集；没有当前影片、不在列表中或已是最后一集时 ok=false。
func (s *Session) NextEpisode(episodeURL string) (domain.Episode, bool) {
	return s.adjacent(episodeURL, domain.MovieDetail.Next)
}

// PrevEpisode 与 NextEpisode 相对。
func (s *Session) PrevEpisode(episodeURL string) (domain.Episode, bool) {
	return s.adjacent(episodeURL, domain.MovieDetail.Prev)
}

func (s *Session) adjacent(episodeURL string, step func(domain.MovieDetail, string) (domain.Episode, bool)) (domain.Episode, bool) {
	s.mu.Lock()
	cur := s.state.CurrentMovie
	var d domain.MovieDetail
	if cur != nil {
		d = *cur
	}
	s.mu.Unlock()
	if cur == nil {
		return domain.Episode{}, false
	}
	return step(d, strings.TrimSpace(episodeURL))
}

// resolveAll 按剧集顺序逐一解析。
//
// 约束：严格串行；每集之间检查 ctx，取消时返回错误且不产生部分结果。
func (s *Session) resolveAll(ctx context.Context, d domain.MovieDetail) (map[string]string, error) {
	total := len(d.Episodes)
	urls := make(map[string]string, total)
	if s.obs != nil {
		s.obs.OnResolveStart(d.ID, total)
	}
	s.log.Info("开始解析播放地址", "movie", d.ID, "episodes", total)

	start := time.Now()
	for i, ep := range d.Episodes {
		if err := ctx.Err(); err != nil {
			s.log.Info("解析已取消", "movie", d.ID, "done", i, "total", total)
			return nil, err
		}
		t0 := time.Now()
		u := s.resolve(ctx, ep.URL)
		if u != "" {
			urls[ep.URL] = u
		}
		idx := i + 1
		s.updateIf(isCurrent(d.ID), func(st *State) { st.CacheProgress = idx })
		if s.obs != nil {
			s.obs.OnEpisodeResolved(d.ID, idx, total, ep, u, time.Since(t0))
		}
	}
	if err := ctx.Err(); err != nil {
		s.log.Info("解析已取消", "movie", d.ID, "done", total, "total", total)
		return nil, err
	}

	dur := time.Since(start)
	s.log.Info("播放地址解析完成", "movie", d.ID, "resolved", len(urls), "total", total, "dur", dur)
	if s.obs != nil {
		s.obs.OnResolveDone(d.ID, len(urls), total, dur, false)
	}
	return urls, nil
}

// resolve 解析单集；失败返回空串。
func (s *Session) resolve(ctx context.Context, episodeURL string) string {
	ids := episode.Parse(episodeURL)
	if !ids.Valid() {
		s.log.Warn("无法识别的剧集地址", "url", episodeURL)
		return ""
	}
	b, err := s.site.Play(ctx, ids)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("加载播放页失败", "url", episodeURL, "err", err)
		}
		return ""
	}
	u := parser.ParsePlayURL(b)
	if u == "" {
		s.log.Warn("播放页未找到播放地址", "url", episodeURL)
	}
	return u
}

// publishURLs 只在该影片仍是当前影片时发布地址映射。
func (s *Session) publishURLs(movieID string, urls map[string]string, total int) {
	s.updateIf(isCurrent(movieID), func(st *State) {
		st.PlayURLs = urls
		st.CacheProgress = total
		st.CacheTotal = total
	})
}

func isCurrent(movieID string) func(st *State) bool {
	return func(st *State) bool {
		return st.CurrentMovie != nil && st.CurrentMovie.ID == movieID
	}
}
