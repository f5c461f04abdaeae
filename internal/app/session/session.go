// Package session 是“抓取 -> 解析 -> 缓存或逐集解析 -> 发布状态”的编排层。
//
// 约束：
// - 所有状态集中在 State 中，变更后同步通知订阅者（通知在锁外进行）
// - 网络/解析失败只记录日志并返回错误，已发布的状态保持不变（Loading 除外）
// - 翻页失败回滚页码，便于用户重试
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/jianpian/internal/episode"
	"github.com/John-Robertt/jianpian/internal/store"
)

// Site 是会话依赖的上游接口（*site.Client 实现了它）。
type Site interface {
	Search(ctx context.Context, keyword string) ([]byte, error)
	SearchPage(ctx context.Context, keyword string, page int) ([]byte, error)
	Category(ctx context.Context, id int) ([]byte, error)
	CategoryPage(ctx context.Context, id, page int) ([]byte, error)
	Detail(ctx context.Context, id string) ([]byte, error)
	Play(ctx context.Context, ids episode.IDs) ([]byte, error)
	Home(ctx context.Context) ([]byte, error)
	Filter(ctx context.Context, ref string) ([]byte, error)
}

// DefaultSaveInterval 是播放位置的默认保存间隔。
const DefaultSaveInterval = 5 * time.Second

// Deps 是构造 Session 所需的依赖。
type Deps struct {
	Site      Site
	PlayURLs  *store.PlayURLCache
	History   *store.HistoryStore
	Favorites *store.FavoriteStore

	Logger   *log.Logger
	Observer Observer

	// SaveInterval 为 0 时使用 DefaultSaveInterval。
	SaveInterval time.Duration
}

// cursor 是一条分页流的游标。
type cursor struct {
	page    int
	end     bool
	loading bool
}

// Session 是单个用户会话的编排器；方法可并发调用。
type Session struct {
	site      Site
	playURLs  *store.PlayURLCache
	history   *store.HistoryStore
	favorites *store.FavoriteStore
	log       *log.Logger
	obs       Observer
	interval  time.Duration

	flight    singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*flightCall
	flightSeq uint64

	mu       sync.Mutex
	state    State
	loadingN int
	// version 每次状态变更递增；投递时据此丢弃过期快照。
	version uint64

	// listGen 在列表被整体替换时递增，用于丢弃过期的翻页结果。
	listGen uint64
	// pending 在每次发起“替换列表”的请求时递增；只有最新的请求可以提交结果。
	pending   uint64
	keyword   string
	search    cursor
	category  int
	catCursor cursor

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int

	// pubMu 串行化投递：订阅者按版本顺序收到快照，最后收到的一定是最新状态。
	pubMu     sync.Mutex
	delivered uint64
}

// New 校验依赖并构造 Session。
func New(d Deps) (*Session, error) {
	if d.Site == nil {
		return nil, errors.New("site 不能为空")
	}
	if d.PlayURLs == nil || d.History == nil || d.Favorites == nil {
		return nil, errors.New("store 不能为空")
	}
	lg := d.Logger
	if lg == nil {
		lg = log.Default()
	}
	iv := d.SaveInterval
	if iv <= 0 {
		iv = DefaultSaveInterval
	}
	return &Session{
		site:      d.Site,
		playURLs:  d.PlayURLs,
		history:   d.History,
		favorites: d.Favorites,
		log:       lg,
		obs:       d.Observer,
		interval:  iv,
		subs:      map[int]func(State){},
		flights:   map[string]*flightCall{},
	}, nil
}

// State 返回当前状态快照。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe 注册状态订阅者；返回的 cancel 可重复调用。
//
// 约束：
// - 订阅者在触发变更的 goroutine 上同步执行，且投递是串行的，应尽快返回
// - 订阅者内不能同步调用会修改状态的方法（会与投递互相等待）
// - 并发变更时较旧的快照可能被跳过，但最后一次投递总是最新状态
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) notify(version uint64, st State) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

// update 在锁内修改状态，然后在锁外通知订阅者。
func (s *Session) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	s.version++
	v := s.version
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(v, snap)
}

// updateIf 只有 cond 在锁内成立时才修改并通知。
func (s *Session) updateIf(cond func(st *State) bool, fn func(st *State)) bool {
	s.mu.Lock()
	if !cond(&s.state) {
		s.mu.Unlock()
		return false
	}
	fn(&s.state)
	s.version++
	v := s.version
	snap := s.state.clone()
	s.mu.Unlock()
	s.notify(v, snap)
	return true
}

// beginLoading 返回的函数用于结束本次 loading；多个流程同时进行时按计数合并。
func (s *Session) beginLoading() func() {
	s.update(func(st *State) {
		s.loadingN++
		st.Loading = true
	})
	return func() {
		s.update(func(st *State) {
			if s.loadingN > 0 {
				s.loadingN--
			}
			st.Loading = s.loadingN > 0
		})
	}
}
