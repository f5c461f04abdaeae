package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/site"
	"github.com/John-Robertt/jianpian/internal/store"
	"github.com/John-Robertt/jianpian/internal/store/kv"
)

func listPage(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="stui-vodlist">`)
	for _, id := range ids {
		fmt.Fprintf(&b, `<li class="stui-vodlist__item"><a class="stui-vodlist__thumb" href="/jpvod/%s.html" title="影片%s" data-original="https://img.test/%s.jpg"></a></li>`, id, id, id)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func detailPage(id string, episodes int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><head><link rel="canonical" href="/jpvod/%s.html"><title>测试剧在线观看</title></head><body>`, id)
	fmt.Fprintf(&b, `<div class="stui-content__thumb"><img data-original="https://img.test/%s.jpg"></div>`, id)
	b.WriteString(`<div class="stui-content__detail"><h1 class="title">测试剧</h1></div><ul class="stui-content__playlist">`)
	for i := 1; i <= episodes; i++ {
		fmt.Fprintf(&b, `<li><a href="/jpplay/%s-1-%d.html">第%02d集</a></li>`, id, i, i)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

func playPage(path string) string {
	u := "https://cdn.test" + strings.TrimSuffix(path, ".html") + ".m3u8"
	u = strings.ReplaceAll(u, "/", `\/`)
	return `<html><body><script>var player_aaaa={"url":"` + u + `","encrypt":0}</script></body></html>`
}

const categoryPage = `<html><body>
<ul class="stui-screen__list"><li><span>按类型</span></li><li><a href="/jpshow/1-----------.html">动作</a></li></ul>
<ul class="stui-screen__list"><li><span>按地区</span></li><li><a href="/jpshow/1-大陆----------.html">大陆</a></li></ul>
<ul class="stui-vodlist">
<li class="stui-vodlist__item"><a class="stui-vodlist__thumb" href="/jpvod/11.html" title="影片11"></a></li>
<li class="stui-vodlist__item"><a class="stui-vodlist__thumb" href="/jpvod/12.html" title="影片12"></a></li>
</ul></body></html>`

const homePage = `<html><body>
<div class="stui-pannel"><div class="stui-pannel__head"><h3 class="title">最新</h3></div>
<ul class="stui-vodlist"><li class="stui-vodlist__item"><a class="stui-vodlist__thumb" href="/jpvod/90.html" title="最新片"></a></li></ul></div>
<div class="stui-pannel"><div class="stui-pannel__head"><h3 class="title">热播推荐</h3></div>
<ul class="stui-vodlist"><li class="stui-vodlist__item"><a class="stui-vodlist__thumb" href="/jpvod/91.html" title="热播片"></a></li></ul></div>
</body></html>`

// upstream 模拟站点；记录播放页请求顺序与最大并发。
type upstream struct {
	mu        sync.Mutex
	plays     []string
	pages     []string
	inflight  atomic.Int32
	maxFlight atomic.Int32
	failPages  atomic.Bool
	failSearch atomic.Bool
	// gate 非 nil 时，播放页请求在记录后等待它关闭。
	gate chan struct{}
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	switch {
	case r.Method == http.MethodPost && p == "/jpsearch/-------------.html":
		if u.failSearch.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, listPage("1", "2"))
	case strings.HasPrefix(p, "/jpsearch/"):
		u.mu.Lock()
		u.pages = append(u.pages, p)
		u.mu.Unlock()
		if u.failPages.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		switch p {
		case "/jpsearch/kw----------2---.html":
			_, _ = io.WriteString(w, listPage("3"))
		default:
			_, _ = io.WriteString(w, listPage())
		}
	case p == "/jptype/1.html":
		_, _ = io.WriteString(w, categoryPage)
	case p == "/jptype/1-2.html":
		u.mu.Lock()
		u.pages = append(u.pages, p)
		u.mu.Unlock()
		_, _ = io.WriteString(w, listPage("13"))
	case strings.HasPrefix(p, "/jpshow/"):
		_, _ = io.WriteString(w, listPage("21"))
	case strings.HasPrefix(p, "/jpvod/"):
		id := strings.TrimSuffix(strings.TrimPrefix(p, "/jpvod/"), ".html")
		_, _ = io.WriteString(w, detailPage(id, 3))
	case strings.HasPrefix(p, "/jpplay/"):
		n := u.inflight.Add(1)
		defer u.inflight.Add(-1)
		for {
			m := u.maxFlight.Load()
			if n <= m || u.maxFlight.CompareAndSwap(m, n) {
				break
			}
		}
		u.mu.Lock()
		u.plays = append(u.plays, p)
		gate := u.gate
		u.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
		_, _ = io.WriteString(w, playPage(p))
	case p == "/":
		_, _ = io.WriteString(w, homePage)
	default:
		http.NotFound(w, r)
	}
}

func (u *upstream) playRequests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.plays...)
}

func (u *upstream) pageRequests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.pages...)
}

// countingKV 统计每个 namespace 的写入次数。
type countingKV struct {
	kv.Store
	mu   sync.Mutex
	puts map[string]int
}

func (c *countingKV) Put(namespace, key string, value []byte) error {
	c.mu.Lock()
	c.puts[namespace]++
	c.mu.Unlock()
	return c.Store.Put(namespace, key, value)
}

func (c *countingKV) putCount(namespace string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts[namespace]
}

type recordObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordObserver) OnResolveStart(movieID string, total int) {
	o.add(fmt.Sprintf("start:%s:%d", movieID, total))
}

func (o *recordObserver) OnEpisodeResolved(movieID string, idx, total int, ep domain.Episode, playURL string, _ time.Duration) {
	o.add(fmt.Sprintf("episode:%d/%d:%t", idx, total, playURL != ""))
}

func (o *recordObserver) OnResolveDone(movieID string, resolved, total int, _ time.Duration, cached bool) {
	o.add(fmt.Sprintf("done:%d/%d:%t", resolved, total, cached))
}

func (o *recordObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// flightMembers 返回某个共享执行当前的参与者数量。
func (s *Session) flightMembers(key string) int {
	s.flightMu.Lock()
	fc := s.flights[key]
	s.flightMu.Unlock()
	if fc == nil {
		return 0
	}
	fc.ctx.mu.Lock()
	defer fc.ctx.mu.Unlock()
	return len(fc.ctx.members)
}

type fixture struct {
	up   *upstream
	kv   *countingKV
	sess *Session
	urls *store.PlayURLCache
	hist *store.HistoryStore
	obs  *recordObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	up := &upstream{}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	lg := log.New(io.Discard)
	c, err := site.New(site.Options{
		BaseURL:      srv.URL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		PageCacheTTL: -1,
		Logger:       lg,
	})
	require.NoError(t, err)

	fs := kv.NewFileStore(t.TempDir())
	t.Cleanup(func() { _ = fs.Close() })
	ckv := &countingKV{Store: fs, puts: map[string]int{}}

	f := &fixture{
		up:   up,
		kv:   ckv,
		urls: store.NewPlayURLCache(ckv, 0, lg),
		hist: store.NewHistoryStore(ckv, lg),
		obs:  &recordObserver{},
	}
	f.sess, err = New(Deps{
		Site:         c,
		PlayURLs:     f.urls,
		History:      f.hist,
		Favorites:    store.NewFavoriteStore(ckv, lg),
		Logger:       lg,
		Observer:     f.obs,
		SaveInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return f
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	require.Error(t, err)
}

func TestOpenMovie_ResolvesSequentiallyAndCachesOnce(t *testing.T) {
	f := newFixture(t)

	var (
		mu       sync.Mutex
		progress []int
	)
	cancel := f.sess.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if st.CacheProgress == 0 {
			return
		}
		if n := len(progress); n > 0 && progress[n-1] == st.CacheProgress {
			return
		}
		progress = append(progress, st.CacheProgress)
	})
	defer cancel()

	require.NoError(t, f.sess.OpenMovie(context.Background(), "42"))

	assert.Equal(t, []string{
		"/jpplay/42-1-1.html",
		"/jpplay/42-1-2.html",
		"/jpplay/42-1-3.html",
	}, f.up.playRequests())
	assert.EqualValues(t, 1, f.up.maxFlight.Load(), "剧集必须串行解析")

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, progress)
	mu.Unlock()

	assert.Equal(t, 1, f.kv.putCount(store.NamespacePlayURL), "整部影片只写一次缓存")
	cached, ok := f.urls.Get("42")
	require.True(t, ok)
	assert.Len(t, cached, 3)
	assert.Equal(t, "https://cdn.test/jpplay/42-1-2.m3u8", cached["/jpplay/42-1-2.html"])

	st := f.sess.State()
	require.NotNil(t, st.CurrentMovie)
	assert.Equal(t, "42", st.CurrentMovie.ID)
	assert.Equal(t, "测试剧", st.CurrentMovie.Title)
	assert.Len(t, st.PlayURLs, 3)
	assert.Equal(t, 3, st.CacheTotal)
	assert.False(t, st.Loading)

	assert.Equal(t, []string{
		"start:42:3",
		"episode:1/3:true",
		"episode:2/3:true",
		"episode:3/3:true",
		"done:3/3:false",
	}, f.obs.snapshot())
}

func TestOpenMovie_CacheHitSkipsPlayRequests(t *testing.T) {
	f := newFixture(t)
	want := map[string]string{"/jpplay/42-1-1.html": "https://cdn.test/a.m3u8"}
	require.NoError(t, f.urls.Put("42", want))

	require.NoError(t, f.sess.OpenMovie(context.Background(), "42"))

	assert.Empty(t, f.up.playRequests())
	assert.Equal(t, want, f.sess.State().PlayURLs)
	assert.Equal(t, []string{"done:1/3:true"}, f.obs.snapshot())
}

func TestOpenMovie_CancelWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsub := f.sess.Subscribe(func(st State) {
		if st.CacheProgress == 1 {
			cancel()
		}
	})
	defer unsub()

	err := f.sess.OpenMovie(ctx, "42")
	require.ErrorIs(t, err, context.Canceled)

	assert.Len(t, f.up.playRequests(), 1)
	assert.Equal(t, 0, f.kv.putCount(store.NamespacePlayURL))
	_, ok := f.urls.Get("42")
	assert.False(t, ok)
	assert.Nil(t, f.sess.State().PlayURLs)
}

func TestOpenMovie_JoinerSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.up.mu.Lock()
	f.up.gate = gate
	f.up.mu.Unlock()
	var gateOnce sync.Once
	openGate := func() { gateOnce.Do(func() { close(gate) }) }
	defer openGate()

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() { errA <- f.sess.OpenMovie(ctxA, "42") }()
	require.Eventually(t, func() bool { return len(f.up.playRequests()) == 1 }, 2*time.Second, 5*time.Millisecond)

	errB := make(chan error, 1)
	go func() { errB <- f.sess.OpenMovie(context.Background(), "42") }()
	require.Eventually(t, func() bool { return f.sess.flightMembers("open:42") == 2 }, 2*time.Second, 5*time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("取消的调用方应立即返回")
	}

	openGate()
	select {
	case err := <-errB:
		require.NoError(t, err, "其他调用方的取消不应影响本调用")
	case <-time.After(5 * time.Second):
		t.Fatal("等待第二个调用方超时")
	}

	assert.Len(t, f.up.playRequests(), 3, "两个调用方共享一次解析")
	assert.Equal(t, 1, f.kv.putCount(store.NamespacePlayURL))
	cached, ok := f.urls.Get("42")
	require.True(t, ok)
	assert.Len(t, cached, 3)
	assert.Len(t, f.sess.State().PlayURLs, 3)
	assert.Zero(t, f.sess.flightMembers("open:42"))
}

func TestOpenDetail_PublishesWithoutResolving(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.sess.OpenDetail(context.Background(), "42"))
	assert.Empty(t, f.up.playRequests())
	assert.Empty(t, f.obs.snapshot())
	st := f.sess.State()
	require.NotNil(t, st.CurrentMovie)
	assert.Equal(t, "42", st.CurrentMovie.ID)
	assert.Nil(t, st.PlayURLs)
	assert.False(t, st.Loading)

	require.NoError(t, f.sess.SaveHistory("42", "第02集", "/jpplay/42-1-2.html", 3000))
	h, ok := f.sess.History("42")
	require.True(t, ok)
	assert.EqualValues(t, 3000, h.PlaybackPositionMs)
	assert.Equal(t, "测试剧", h.MovieTitle)

	// 缓存里已有地址时一并发布，仍不请求播放页。
	want := map[string]string{"/jpplay/43-1-1.html": "https://cdn.test/a.m3u8"}
	require.NoError(t, f.urls.Put("43", want))
	require.NoError(t, f.sess.OpenDetail(context.Background(), "43"))
	assert.Equal(t, want, f.sess.State().PlayURLs)
	assert.Empty(t, f.up.playRequests())

	require.NoError(t, f.sess.OpenDetail(context.Background(), " "))
}

func TestNextPrevEpisode_FollowCurrentMovie(t *testing.T) {
	f := newFixture(t)
	_, ok := f.sess.NextEpisode("/jpplay/42-1-1.html")
	assert.False(t, ok, "没有当前影片")

	require.NoError(t, f.sess.OpenDetail(context.Background(), "42"))

	next, ok := f.sess.NextEpisode("/jpplay/42-1-1.html")
	require.True(t, ok)
	assert.Equal(t, "/jpplay/42-1-2.html", next.URL)
	_, ok = f.sess.NextEpisode("/jpplay/42-1-3.html")
	assert.False(t, ok, "最后一集没有下一集")

	prev, ok := f.sess.PrevEpisode(" /jpplay/42-1-2.html ")
	require.True(t, ok)
	assert.Equal(t, "第01集", prev.Name)
	_, ok = f.sess.PrevEpisode("/jpplay/42-1-1.html")
	assert.False(t, ok)
	_, ok = f.sess.PrevEpisode("/jpplay/99-1-1.html")
	assert.False(t, ok, "不属于当前影片")
}

func TestOpenMovie_EmptyIDIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.OpenMovie(context.Background(), "  "))
	assert.Nil(t, f.sess.State().CurrentMovie)
}

func TestRefreshURLs_OverwritesCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.urls.Put("42", map[string]string{"/jpplay/42-1-1.html": "https://old.test/x.m3u8"}))
	require.NoError(t, f.sess.OpenMovie(context.Background(), "42"))
	require.Empty(t, f.up.playRequests())

	d := *f.sess.State().CurrentMovie
	require.NoError(t, f.sess.RefreshURLs(context.Background(), d))

	assert.Len(t, f.up.playRequests(), 3)
	cached, ok := f.urls.Get("42")
	require.True(t, ok)
	assert.Equal(t, "https://cdn.test/jpplay/42-1-1.m3u8", cached["/jpplay/42-1-1.html"])
	assert.Len(t, f.sess.State().PlayURLs, 3)

	require.Error(t, f.sess.RefreshURLs(context.Background(), domain.MovieDetail{}))
}

func TestPlayURL_PrefersResolvedMap(t *testing.T) {
	f := newFixture(t)

	u := f.sess.PlayURL(context.Background(), "/jpplay/7-1-1.html")
	assert.Equal(t, "https://cdn.test/jpplay/7-1-1.m3u8", u)
	assert.Equal(t, u, f.sess.State().CurrentPlayURL)
	require.Len(t, f.up.playRequests(), 1)

	require.NoError(t, f.sess.OpenMovie(context.Background(), "42"))
	n := len(f.up.playRequests())
	u = f.sess.PlayURL(context.Background(), "/jpplay/42-1-2.html")
	assert.Equal(t, "https://cdn.test/jpplay/42-1-2.m3u8", u)
	assert.Len(t, f.up.playRequests(), n, "已解析的剧集不应再请求")

	assert.Empty(t, f.sess.PlayURL(context.Background(), "/jpvod/1.html"))
	assert.Empty(t, f.sess.State().CurrentPlayURL)
}

func TestSearch_PaginationAppendsAndRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Error(t, f.sess.Search(ctx, " "))
	require.NoError(t, f.sess.Search(ctx, "kw"))
	st := f.sess.State()
	require.Len(t, st.Movies, 2)
	assert.Equal(t, "kw", st.Keyword)

	require.NoError(t, f.sess.LoadNextPage(ctx))
	require.Len(t, f.sess.State().Movies, 3)

	f.up.failPages.Store(true)
	require.Error(t, f.sess.LoadNextPage(ctx))
	assert.Len(t, f.sess.State().Movies, 3, "失败时保留已有结果")

	f.up.failPages.Store(false)
	require.NoError(t, f.sess.LoadNextPage(ctx))
	assert.Len(t, f.sess.State().Movies, 3)

	// 已到末页：不再请求。
	require.NoError(t, f.sess.LoadNextPage(ctx))

	assert.Equal(t, []string{
		"/jpsearch/kw----------2---.html",
		"/jpsearch/kw----------3---.html",
		"/jpsearch/kw----------3---.html",
	}, f.up.pageRequests())
	assert.False(t, f.sess.State().Loading)
}

func TestSearch_FailureKeepsPreviousQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sess.Search(ctx, "kw"))

	var (
		mu       sync.Mutex
		keywords []string
	)
	unsub := f.sess.Subscribe(func(st State) {
		mu.Lock()
		keywords = append(keywords, st.Keyword)
		mu.Unlock()
	})
	defer unsub()

	f.up.failSearch.Store(true)
	require.Error(t, f.sess.Search(ctx, "other"))

	st := f.sess.State()
	assert.Equal(t, "kw", st.Keyword)
	assert.Len(t, st.Movies, 2)
	assert.False(t, st.Loading)
	mu.Lock()
	assert.NotContains(t, keywords, "other", "失败的搜索不应发布新关键字")
	mu.Unlock()

	require.NoError(t, f.sess.LoadNextPage(ctx))
	assert.Equal(t, []string{"/jpsearch/kw----------2---.html"}, f.up.pageRequests())
	assert.Len(t, f.sess.State().Movies, 3)
}

func TestSearchByCategory_FailureKeepsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sess.Search(ctx, "kw"))

	require.Error(t, f.sess.SearchByCategory(ctx, 2))
	st := f.sess.State()
	assert.False(t, st.ShowSubCategories)
	assert.Zero(t, st.Category)
	assert.Len(t, st.Movies, 2)

	require.NoError(t, f.sess.LoadCategoryNextPage(ctx))
	assert.Empty(t, f.up.pageRequests(), "失败的分类不应成为当前分类")
}

func TestLoadNextPage_NoKeywordIsNoop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.LoadNextPage(context.Background()))
	require.NoError(t, f.sess.LoadCategoryNextPage(context.Background()))
	assert.Empty(t, f.up.pageRequests())
}

func TestSearchByCategory_FiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.Error(t, f.sess.SearchByCategory(ctx, 0))
	require.NoError(t, f.sess.SearchByCategory(ctx, 1))
	st := f.sess.State()
	assert.True(t, st.ShowSubCategories)
	assert.Equal(t, 1, st.Category)
	require.Len(t, st.Movies, 2)
	require.Len(t, st.CategoryFilters.Types, 1)
	assert.Equal(t, "动作", st.CategoryFilters.Types[0].Name)
	assert.Len(t, st.CategoryFilters.Regions, 1)
	assert.Empty(t, st.CategoryFilters.Years)

	require.NoError(t, f.sess.LoadCategoryNextPage(ctx))
	assert.Len(t, f.sess.State().Movies, 3)

	require.NoError(t, f.sess.ApplyFilter(ctx, st.CategoryFilters.Types[0]))
	movies := f.sess.State().Movies
	require.Len(t, movies, 1)
	assert.Equal(t, "21", movies[0].ID)

	require.NoError(t, f.sess.LoadCategoryNextPage(ctx))
	assert.Equal(t, []string{"/jptype/1-2.html"}, f.up.pageRequests(), "筛选后不再翻分类页")

	f.sess.ClearSearchResults()
	assert.Empty(t, f.sess.State().Movies)
}

func TestLoadHot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.LoadHot(context.Background()))
	hot := f.sess.State().HotMovies
	require.Len(t, hot, 1)
	assert.Equal(t, "91", hot[0].ID)
}

func TestLoadHistories_DropsIncompleteAndFillsMovies(t *testing.T) {
	f := newFixture(t)
	good := domain.PlayHistory{
		MovieID: "1", MovieTitle: "甲", MovieCoverURL: "https://img.test/1.jpg",
		EpisodeName: "第01集", EpisodeURL: "/jpplay/1-1-1.html", TimestampMs: 200,
	}
	bad := domain.PlayHistory{MovieID: "2", MovieTitle: "乙", TimestampMs: 100}
	require.NoError(t, f.hist.Replace([]domain.PlayHistory{good, bad}))

	require.NoError(t, f.sess.LoadHistories())

	st := f.sess.State()
	require.Len(t, st.Histories, 1)
	assert.Equal(t, "1", st.Histories[0].MovieID)
	require.Len(t, st.Movies, 1)
	assert.Equal(t, good.AsMovie(), st.Movies[0])
	assert.Len(t, f.hist.List(), 1, "清理结果必须写回")
}

func TestSaveHistory_RequiresCurrentMovie(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.sess.SaveHistory("42", "第01集", "/jpplay/42-1-1.html", 1000), ErrNoCurrentMovie)

	require.NoError(t, f.sess.OpenMovie(context.Background(), "42"))
	require.Error(t, f.sess.SaveHistory("43", "第01集", "/jpplay/43-1-1.html", 1000))
	require.NoError(t, f.sess.SaveHistory("42", "第02集", "/jpplay/42-1-2.html", 1000))

	hs := f.sess.State().Histories
	require.Len(t, hs, 1)
	assert.Equal(t, "测试剧", hs[0].MovieTitle)
	assert.Equal(t, "https://img.test/42.jpg", hs[0].MovieCoverURL)
	assert.EqualValues(t, 1000, hs[0].PlaybackPositionMs)

	require.NoError(t, f.sess.DeleteHistory("42"))
	assert.Empty(t, f.sess.State().Histories)
}

func TestToggleFavorite_RoundTrip(t *testing.T) {
	f := newFixture(t)
	m := domain.Movie{ID: "5", Title: "收藏片"}

	on, err := f.sess.ToggleFavorite(m)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, f.sess.IsFavorite("5"))
	require.Len(t, f.sess.State().Favorites, 1)

	on, err = f.sess.ToggleFavorite(m)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, f.sess.State().Favorites)

	_, err = f.sess.ToggleFavorite(domain.Movie{})
	require.Error(t, err)

	_, _ = f.sess.ToggleFavorite(m)
	require.NoError(t, f.sess.ClearFavorites())
	assert.Empty(t, f.sess.State().Favorites)
	assert.False(t, f.sess.IsFavorite("5"))
}

func TestSubscribe_CancelStopsNotifications(t *testing.T) {
	f := newFixture(t)
	var n atomic.Int32
	cancel := f.sess.Subscribe(func(State) { n.Add(1) })

	f.sess.ClearSearchResults()
	require.EqualValues(t, 1, n.Load())

	cancel()
	cancel()
	f.sess.ClearSearchResults()
	assert.EqualValues(t, 1, n.Load())
}

func TestSubscribe_LastDeliveryIsLatestState(t *testing.T) {
	f := newFixture(t)

	var (
		first atomic.Bool
		mu    sync.Mutex
		last  State
		calls int
	)
	unsub := f.sess.Subscribe(func(st State) {
		if first.CompareAndSwap(false, true) {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		last = st
		calls++
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.sess.ClearSearchResults()
	}()
	require.Eventually(t, first.Load, time.Second, time.Millisecond)

	_, err := f.sess.ToggleFavorite(domain.Movie{ID: "5", Title: "收藏片"})
	require.NoError(t, err)
	wg.Wait()

	require.Len(t, f.sess.State().Favorites, 1)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Len(t, last.Favorites, 1, "最后一次投递必须是最新状态")
}

func TestState_IsSnapshot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.Search(context.Background(), "kw"))

	st := f.sess.State()
	st.Movies[0].Title = "改过"
	assert.NotEqual(t, "改过", f.sess.State().Movies[0].Title)
}
