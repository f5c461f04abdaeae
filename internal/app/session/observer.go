package session

import (
	"time"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// Observer 用于把“播放地址解析进度”从核心流程中解耦出来。
//
// 约束：
// - session 包只负责发事件，不做任何输出
// - Observer 的实现必须并发安全：不同影片的解析可能同时进行
type Observer interface {
	// OnResolveStart 在开始逐集解析前调用。
	OnResolveStart(movieID string, total int)
	// OnEpisodeResolved 在每一集解析结束后调用（playURL 为空表示该集失败）。
	OnEpisodeResolved(movieID string, idx, total int, ep domain.Episode, playURL string, dur time.Duration)
	// OnResolveDone 在整部影片解析完成时调用；cached=true 表示直接命中缓存。
	OnResolveDone(movieID string, resolved, total int, dur time.Duration, cached bool)
}
