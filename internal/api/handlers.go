package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/jianpian/internal/domain"
)

type searchRequest struct {
	Keyword string `json:"keyword"`
}

type historyRequest struct {
	MovieID     string `json:"movie_id"`
	EpisodeName string `json:"episode_name"`
	EpisodeURL  string `json:"episode_url"`
	PositionMs  int64  `json:"position_ms"`
}

func (s *Server) state(c *gin.Context) {
	Success(c, s.sess.State())
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Keyword) == "" {
		BadRequest(c, "keyword 不能为空")
		return
	}
	if err := s.sess.Search(c.Request.Context(), req.Keyword); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Movies)
}

func (s *Server) searchNext(c *gin.Context) {
	if err := s.sess.LoadNextPage(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Movies)
}

func (s *Server) clearMovies(c *gin.Context) {
	s.sess.ClearSearchResults()
	Success(c, nil)
}

func (s *Server) hot(c *gin.Context) {
	if err := s.sess.LoadHot(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().HotMovies)
}

func (s *Server) category(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		BadRequest(c, "非法分类 id")
		return
	}
	if err := s.sess.SearchByCategory(c.Request.Context(), id); err != nil {
		Fail(c, err)
		return
	}
	st := s.sess.State()
	Success(c, gin.H{"movies": st.Movies, "filters": st.CategoryFilters})
}

func (s *Server) categoryNext(c *gin.Context) {
	if err := s.sess.LoadCategoryNextPage(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Movies)
}

func (s *Server) filter(c *gin.Context) {
	var item domain.FilterItem
	if err := c.ShouldBindJSON(&item); err != nil || strings.TrimSpace(item.URL) == "" {
		BadRequest(c, "url 不能为空")
		return
	}
	if err := s.sess.ApplyFilter(c.Request.Context(), item); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Movies)
}

// openMovie 默认后台执行；?wait=1 时在请求内完成并返回详情。
func (s *Server) openMovie(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		BadRequest(c, "id 不能为空")
		return
	}
	s.run(c, "open", id, func(ctx context.Context) error {
		return s.sess.OpenMovie(ctx, id)
	})
}

// refreshURLs 只允许刷新当前影片（需要它的剧集列表）。
func (s *Server) refreshURLs(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	cur := s.sess.State().CurrentMovie
	if cur == nil || cur.ID != id {
		Error(c, http.StatusConflict, "只能刷新当前影片")
		return
	}
	d := *cur
	s.run(c, "refresh", id, func(ctx context.Context) error {
		return s.sess.RefreshURLs(ctx, d)
	})
}

func (s *Server) run(c *gin.Context, op, id string, fn func(ctx context.Context) error) {
	if wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false")); wait {
		if err := fn(c.Request.Context()); err != nil {
			Fail(c, err)
			return
		}
		st := s.sess.State()
		Success(c, gin.H{"movie": st.CurrentMovie, "play_urls": st.PlayURLs})
		return
	}
	go func() {
		if err := fn(s.base); err != nil {
			s.log.Warn("后台任务失败", "op", op, "movie", id, "err", err)
		}
	}()
	Accepted(c, gin.H{"op": op, "id": id})
}

func (s *Server) playURL(c *gin.Context) {
	ep := strings.TrimSpace(c.Query("url"))
	if ep == "" {
		BadRequest(c, "url 不能为空")
		return
	}
	u := s.sess.PlayURL(c.Request.Context(), ep)
	if u == "" {
		NotFound(c, "未找到播放地址")
		return
	}
	Success(c, gin.H{"url": u})
}

func (s *Server) nextEpisode(c *gin.Context) {
	s.adjacentEpisode(c, s.sess.NextEpisode, "没有下一集")
}

func (s *Server) prevEpisode(c *gin.Context) {
	s.adjacentEpisode(c, s.sess.PrevEpisode, "没有上一集")
}

// adjacentEpisode 返回当前影片的相邻剧集及其播放地址（地址可能为空）。
func (s *Server) adjacentEpisode(c *gin.Context, step func(string) (domain.Episode, bool), missing string) {
	cur := strings.TrimSpace(c.Query("url"))
	if cur == "" {
		BadRequest(c, "url 不能为空")
		return
	}
	ep, ok := step(cur)
	if !ok {
		NotFound(c, missing)
		return
	}
	Success(c, gin.H{"episode": ep, "url": s.sess.PlayURL(c.Request.Context(), ep.URL)})
}

func (s *Server) histories(c *gin.Context) {
	if err := s.sess.LoadHistories(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Histories)
}

// history 返回单部影片的观看记录（续播位置）。
func (s *Server) history(c *gin.Context) {
	h, ok := s.sess.History(c.Param("id"))
	if !ok {
		NotFound(c, "没有观看记录")
		return
	}
	Success(c, h)
}

func (s *Server) saveHistory(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MovieID) == "" {
		BadRequest(c, "movie_id 不能为空")
		return
	}
	if err := s.sess.SaveHistory(req.MovieID, req.EpisodeName, req.EpisodeURL, req.PositionMs); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Histories)
}

func (s *Server) deleteHistory(c *gin.Context) {
	if err := s.sess.DeleteHistory(c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Histories)
}

func (s *Server) clearHistories(c *gin.Context) {
	if err := s.sess.ClearHistories(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

func (s *Server) favorites(c *gin.Context) {
	s.sess.LoadFavorites()
	Success(c, s.sess.State().Favorites)
}

func (s *Server) isFavorite(c *gin.Context) {
	Success(c, gin.H{"favorite": s.sess.IsFavorite(c.Param("id"))})
}

func (s *Server) toggleFavorite(c *gin.Context) {
	var m domain.Movie
	if err := c.ShouldBindJSON(&m); err != nil || strings.TrimSpace(m.ID) == "" {
		BadRequest(c, "id 不能为空")
		return
	}
	on, err := s.sess.ToggleFavorite(m)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"favorite": on})
}

func (s *Server) clearFavorites(c *gin.Context) {
	if err := s.sess.ClearFavorites(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

// cover 返回封面缩略图；未缓存时用 ?url= 下载。
func (s *Server) cover(c *gin.Context) {
	if s.covers == nil {
		NotFound(c, "封面缓存未启用")
		return
	}
	b, err := s.covers.Cover(c.Request.Context(), c.Param("id"), c.Query("url"))
	if err != nil {
		s.log.Debug("封面不可用", "movie", c.Param("id"), "err", err)
		NotFound(c, "封面不可用")
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", b)
}
