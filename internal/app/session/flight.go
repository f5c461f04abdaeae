package session

import (
	"context"
	"fmt"
	"sync"
)

// flightCtx 是共享执行使用的 context：只有所有参与者的 ctx 都结束后才结束。
//
// 约束：Err 同步检查参与者（resolveAll 在每集之间调用它），Done 由 AfterFunc 异步关闭。
type flightCtx struct {
	context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	members []context.Context
	stops   []func() bool
}

func newFlightCtx(first context.Context) *flightCtx {
	base, cancel := context.WithCancel(context.WithoutCancel(first))
	f := &flightCtx{Context: base, cancel: cancel}
	f.join(first)
	return f
}

func (f *flightCtx) join(ctx context.Context) {
	f.mu.Lock()
	f.members = append(f.members, ctx)
	f.mu.Unlock()
	stop := context.AfterFunc(ctx, f.check)
	f.mu.Lock()
	f.stops = append(f.stops, stop)
	f.mu.Unlock()
}

// check 在所有参与者都已取消时取消共享 context。
func (f *flightCtx) check() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members {
		if m.Err() == nil {
			return
		}
	}
	f.cancel()
}

func (f *flightCtx) Err() error {
	f.check()
	return f.Context.Err()
}

// release 在执行结束后解除对参与者的监听。
func (f *flightCtx) release() {
	f.mu.Lock()
	stops := f.stops
	f.stops = nil
	f.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	f.cancel()
}

type flightCall struct {
	key string
	ctx *flightCtx
}

// shared 让同一 key 的并发调用共享一次执行。
//
// 约束：
// - 执行使用的 context 不依赖任何单个调用方：某个调用方取消只会让它自己提前返回
// - 所有调用方都取消后执行才会被取消
func (s *Session) shared(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	// DoChan 在锁内调用：执行结束时先在锁内摘掉 flights[key]，
	// 因此拿到 fc 的调用方一定能加入同一次执行。
	s.flightMu.Lock()
	fc := s.flights[key]
	joined := fc != nil && fc.ctx.Err() == nil
	if joined {
		fc.ctx.join(ctx)
	} else {
		s.flightSeq++
		fc = &flightCall{key: fmt.Sprintf("%s#%d", key, s.flightSeq), ctx: newFlightCtx(ctx)}
		s.flights[key] = fc
	}
	ch := s.flight.DoChan(fc.key, func() (any, error) {
		defer func() {
			s.flightMu.Lock()
			if s.flights[key] == fc {
				delete(s.flights, key)
			}
			s.flightMu.Unlock()
			fc.ctx.release()
		}()
		return nil, fn(fc.ctx)
	})
	s.flightMu.Unlock()
	if joined {
		s.log.Debug("复用进行中的请求", "key", key)
	}

	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
