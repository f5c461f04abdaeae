package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// PositionFunc 返回播放器当前位置与总时长（毫秒）。
type PositionFunc func() (pos, dur int64)

// PositionSaver 周期性把播放位置写入历史。
//
// 约束：
// - 只在 pos>0 且 dur>0 时保存（播放器尚未就绪时跳过）
// - Stop 同步等待后台 goroutine 退出，再做最后一次保存；可重复调用
type PositionSaver struct {
	s        *Session
	movie    domain.MovieDetail
	position PositionFunc

	mu sync.Mutex
	ep domain.Episode

	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// StartPositionSaver 为当前影片启动位置保存器。movieID 必须是当前影片。
func (s *Session) StartPositionSaver(ctx context.Context, movieID string, ep domain.Episode, position PositionFunc) (*PositionSaver, error) {
	if position == nil {
		return nil, fmt.Errorf("position 不能为空")
	}
	movieID = strings.TrimSpace(movieID)
	s.mu.Lock()
	cur := s.state.CurrentMovie
	var d domain.MovieDetail
	if cur != nil {
		d = *cur
	}
	s.mu.Unlock()
	if cur == nil {
		return nil, ErrNoCurrentMovie
	}
	if d.ID != movieID {
		return nil, fmt.Errorf("影片 %s 不是当前影片（当前 %s）", movieID, d.ID)
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &PositionSaver{
		s:        s,
		movie:    d,
		position: position,
		ep:       ep,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.loop(ctx, s.interval)
	return p, nil
}

// SetEpisode 切换正在播放的剧集（自动下一集时调用）。
func (p *PositionSaver) SetEpisode(ep domain.Episode) {
	p.mu.Lock()
	p.ep = ep
	p.mu.Unlock()
}

// Stop 停止后台保存并做最后一次保存，返回最后一次保存的错误。
func (p *PositionSaver) Stop() error {
	p.stopOnce.Do(func() {
		p.cancel()
		<-p.done
		p.stopErr = p.save()
	})
	return p.stopErr
}

func (p *PositionSaver) loop(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.save(); err != nil {
				p.s.log.Warn("定时保存播放位置失败", "movie", p.movie.ID, "err", err)
			}
		}
	}
}

func (p *PositionSaver) save() error {
	pos, dur := p.position()
	if pos <= 0 || dur <= 0 {
		return nil
	}
	p.mu.Lock()
	ep := p.ep
	p.mu.Unlock()
	return p.s.saveHistoryFor(p.movie, ep.Name, ep.URL, pos)
}
