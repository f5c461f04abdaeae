// Package api 把会话暴露为 HTTP/JSON 接口（供电视端 Web 壳或遥控器前端调用）。
//
// 约束：
// - 所有意图都转发给 session，本包不持有业务状态
// - 耗时的影片打开/刷新默认在后台执行，进度通过 /api/events（SSE）推送
package api

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/jianpian/internal/app/session"
	"github.com/John-Robertt/jianpian/internal/infra/cache"
)

// Options 是路由构造参数。
type Options struct {
	Session *session.Session
	// Covers 为空时 /api/covers 返回 404。
	Covers *cache.Store
	Logger *log.Logger

	// BaseContext 是后台任务的父 context（服务关闭时取消）；为空用 Background。
	BaseContext context.Context

	// AllowOrigins 为空时允许任意来源。
	AllowOrigins []string
	Release      bool
}

// Server 持有路由依赖。
type Server struct {
	sess   *session.Session
	covers *cache.Store
	log    *log.Logger
	base   context.Context
	player *player
}

// NewRouter 构造 gin 路由。
func NewRouter(opts Options) *gin.Engine {
	if opts.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	s := &Server{sess: opts.Session, covers: opts.Covers, log: lg, base: base, player: &player{}}

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(lg))
	r.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	// SSE 不能压缩，否则事件会被缓冲。
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/events", "/api/covers"})))

	g := r.Group("/api")
	g.GET("/state", s.state)
	g.GET("/events", s.events)

	g.POST("/search", s.search)
	g.POST("/search/next", s.searchNext)
	g.DELETE("/movies", s.clearMovies)
	g.GET("/hot", s.hot)
	g.GET("/categories/:id", s.category)
	g.POST("/categories/next", s.categoryNext)
	g.POST("/filter", s.filter)

	g.POST("/movies/:id/open", s.openMovie)
	g.POST("/movies/:id/refresh", s.refreshURLs)
	g.GET("/play", s.playURL)
	g.GET("/episodes/next", s.nextEpisode)
	g.GET("/episodes/prev", s.prevEpisode)

	g.POST("/player/start", s.playerStart)
	g.POST("/player/position", s.playerPosition)
	g.POST("/player/episode", s.playerEpisode)
	g.POST("/player/stop", s.playerStop)

	g.GET("/histories", s.histories)
	g.GET("/histories/:id", s.history)
	g.POST("/histories", s.saveHistory)
	g.DELETE("/histories/:id", s.deleteHistory)
	g.DELETE("/histories", s.clearHistories)

	g.GET("/favorites", s.favorites)
	g.GET("/favorites/:id", s.isFavorite)
	g.POST("/favorites/toggle", s.toggleFavorite)
	g.DELETE("/favorites", s.clearFavorites)

	g.GET("/covers/:id", s.cover)
	return r
}

// requestLogger 请求日志中间件
func requestLogger(lg *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		lg.Debug("http",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
