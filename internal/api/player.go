package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/jianpian/internal/app/session"
	"github.com/John-Robertt/jianpian/internal/domain"
)

// player 记录前端播放器上报的位置，并驱动会话的位置保存器。
//
// 约束：同一时刻只有一个保存器；saver.Stop 会回调 position，调用时不能持有 mu。
type player struct {
	mu       sync.Mutex
	saver    *session.PositionSaver
	pos, dur int64
}

func (p *player) position() (int64, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, p.dur
}

// take 摘下当前保存器（可能为 nil）。
func (p *player) take() *session.PositionSaver {
	p.mu.Lock()
	defer p.mu.Unlock()
	sv := p.saver
	p.saver = nil
	return sv
}

type playerStartRequest struct {
	MovieID     string `json:"movie_id"`
	EpisodeName string `json:"episode_name"`
	EpisodeURL  string `json:"episode_url"`
}

type playerEpisodeRequest struct {
	EpisodeName string `json:"episode_name"`
	EpisodeURL  string `json:"episode_url"`
}

type playerPositionRequest struct {
	PositionMs int64 `json:"position_ms"`
	DurationMs int64 `json:"duration_ms"`
}

// playerStart 为当前影片启动位置保存器；已有的保存器先停止（做最后一次保存）。
func (s *Server) playerStart(c *gin.Context) {
	var req playerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MovieID) == "" || strings.TrimSpace(req.EpisodeURL) == "" {
		BadRequest(c, "movie_id 与 episode_url 不能为空")
		return
	}
	if old := s.player.take(); old != nil {
		if err := old.Stop(); err != nil {
			s.log.Warn("停止上一个保存器失败", "err", err)
		}
	}

	s.player.mu.Lock()
	s.player.pos, s.player.dur = 0, 0
	s.player.mu.Unlock()

	ep := domain.Episode{Name: req.EpisodeName, URL: strings.TrimSpace(req.EpisodeURL)}
	sv, err := s.sess.StartPositionSaver(s.base, req.MovieID, ep, s.player.position)
	if err != nil {
		Fail(c, err)
		return
	}
	s.player.mu.Lock()
	s.player.saver = sv
	s.player.mu.Unlock()
	Success(c, gin.H{"movie_id": req.MovieID, "episode": ep})
}

func (s *Server) playerPosition(c *gin.Context) {
	var req playerPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "非法的播放位置")
		return
	}
	s.player.mu.Lock()
	running := s.player.saver != nil
	if running {
		s.player.pos, s.player.dur = req.PositionMs, req.DurationMs
	}
	s.player.mu.Unlock()
	if !running {
		Error(c, http.StatusConflict, "播放器未启动")
		return
	}
	Success(c, nil)
}

// playerEpisode 切换正在播放的剧集（自动下一集）。
func (s *Server) playerEpisode(c *gin.Context) {
	var req playerEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.EpisodeURL) == "" {
		BadRequest(c, "episode_url 不能为空")
		return
	}
	s.player.mu.Lock()
	sv := s.player.saver
	s.player.mu.Unlock()
	if sv == nil {
		Error(c, http.StatusConflict, "播放器未启动")
		return
	}
	sv.SetEpisode(domain.Episode{Name: req.EpisodeName, URL: strings.TrimSpace(req.EpisodeURL)})
	Success(c, nil)
}

// playerStop 停止保存器并做最后一次保存；未启动时为 no-op。
func (s *Server) playerStop(c *gin.Context) {
	sv := s.player.take()
	if sv == nil {
		Success(c, nil)
		return
	}
	if err := sv.Stop(); err != nil {
		Fail(c, err)
		return
	}
	Success(c, s.sess.State().Histories)
}
