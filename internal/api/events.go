package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/John-Robertt/jianpian/internal/app/session"
)

const heartbeatInterval = 15 * time.Second

// events 以 SSE 推送状态快照：连接建立时先推一次，之后每次变更推送。
//
// 约束：订阅回调不能阻塞会话，慢客户端只会收到最新的快照（中间状态被合并）。
func (s *Server) events(c *gin.Context) {
	ch := make(chan session.State, 1)
	cancel := s.sess.Subscribe(func(st session.State) {
		for {
			select {
			case ch <- st:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	})
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	first := true
	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		if first {
			first = false
			c.SSEvent("state", s.sess.State())
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case st := <-ch:
			c.SSEvent("state", st)
			return true
		case <-hb.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})
}
