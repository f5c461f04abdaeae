package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/jianpian/internal/app/session"
	"github.com/John-Robertt/jianpian/internal/domain"
)

var _ session.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的播放地址解析进度输出。
//
// 约束：
// - 只写 stderr（或 fallback 到 stdout 的 TTY），不污染 stdout 的 JSON 输出
// - keepalive：单集解析较慢时定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	movie string
	total int
	done  int
	ok    int
	fail  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnResolveStart(movieID string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.startedAt = now
	p.movie = movieID
	p.total = total
	p.done, p.ok, p.fail = 0, 0, 0

	fmt.Fprintf(p.w, "[%s] 解析播放地址: movie=%s episodes=%d\n", now.Format("15:04:05"), movieID, total)
	p.lastPrinted = now
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnEpisodeResolved(movieID string, idx, total int, ep domain.Episode, playURL string, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	status := "OK"
	if playURL == "" {
		status = "FAIL"
		p.fail++
	} else {
		p.ok++
	}

	name := strings.TrimSpace(ep.Name)
	if name == "" {
		name = ep.URL
	}
	fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", idx, total, truncate(name, 40), status, formatShortDuration(dur))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnResolveDone(movieID string, resolved, total int, dur time.Duration, cached bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopTickerLocked()
	if cached {
		fmt.Fprintf(p.w, "播放地址命中缓存: movie=%s %d/%d\n", movieID, resolved, total)
	} else {
		fmt.Fprintf(p.w, "完成: movie=%s resolved=%d/%d fail=%d (%s)\n",
			movieID, resolved, total, total-resolved, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive（解析被取消时 OnResolveDone 不会被调用）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d fail=%d 开始于 %s\n",
						p.done, p.total, p.ok, p.fail, humanize.Time(p.startedAt))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
