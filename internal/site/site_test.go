package site

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/jianpian/internal/episode"
)

func newTestClient(t *testing.T, base string, mirrors ...string) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: base, Mirrors: mirrors, HTTPClient: &http.Client{Timeout: 5 * time.Second}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return c
}

func TestClient_SearchPostsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jpsearch/-------------.html" {
			http.Error(w, "bad", http.StatusNotFound)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			http.Error(w, "bad ct", http.StatusBadRequest)
			return
		}
		_ = r.ParseForm()
		_, _ = io.WriteString(w, "kw="+r.PostForm.Get("wd"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	b, err := c.Search(context.Background(), "剑来")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "kw=剑来" {
		t.Fatalf("期望表单关键字回显，实际 %q", b)
	}
}

func TestClient_EndpointPaths(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.URL.EscapedPath())
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	steps := []func() ([]byte, error){
		func() ([]byte, error) { return c.SearchPage(ctx, "abc", 2) },
		func() ([]byte, error) { return c.Category(ctx, 1) },
		func() ([]byte, error) { return c.CategoryPage(ctx, 1, 3) },
		func() ([]byte, error) { return c.Detail(ctx, "42") },
		func() ([]byte, error) { return c.Play(ctx, episode.Parse("/jpplay/42-1-7.html")) },
		func() ([]byte, error) { return c.Home(ctx) },
		func() ([]byte, error) { return c.Filter(ctx, "/jpshow/6-----------.html") },
	}
	for i, f := range steps {
		if _, err := f(); err != nil {
			t.Fatalf("第 %d 步不期望错误：%v", i, err)
		}
	}

	want := []string{
		"/jpsearch/abc----------2---.html",
		"/jptype/1.html",
		"/jptype/1-3.html",
		"/jpvod/42.html",
		"/jpplay/42-1-7.html",
		"/",
		"/jpshow/6-----------.html",
	}
	if len(got) != len(want) {
		t.Fatalf("期望 %d 次请求，实际 %d：%v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 次请求路径期望 %q，实际 %q", i, want[i], got[i])
		}
	}
}

func TestClient_PlayRejectsInvalidIDs(t *testing.T) {
	c := newTestClient(t, "https://example.invalid/")
	if _, err := c.Play(context.Background(), episode.Parse("/bad/url.html")); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestClient_DetailIsCachedPlayIsNot(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.Add(1)
		_, _ = io.WriteString(w, "page")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Detail(ctx, "1"); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	if n.Load() != 1 {
		t.Fatalf("详情页期望只请求 1 次，实际 %d", n.Load())
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Play(ctx, episode.Parse("/jpplay/1-1-1.html")); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	if n.Load() != 3 {
		t.Fatalf("播放页不应缓存，期望累计 3 次请求，实际 %d", n.Load())
	}

	c.PurgePages()
	_, _ = c.Detail(ctx, "1")
	if n.Load() != 4 {
		t.Fatalf("清空缓存后期望重新请求，实际 %d", n.Load())
	}
}

func TestPageCache_Expires(t *testing.T) {
	pc := newPageCache(4, time.Minute)
	now := time.Unix(1000, 0)
	pc.now = func() time.Time { return now }

	pc.set("k", []byte("v"))
	if _, ok := pc.get("k"); !ok {
		t.Fatalf("期望命中")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := pc.get("k"); ok {
		t.Fatalf("过期后不应命中")
	}
}

func TestClient_MirrorFallbackOn5xx(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "mirror")
	}))
	defer good.Close()

	c := newTestClient(t, bad.URL, good.URL)
	b, err := c.Home(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "mirror" {
		t.Fatalf("期望镜像返回内容，实际 %q", b)
	}
}

func TestClient_NoFallbackOn404(t *testing.T) {
	var mirrorHits atomic.Int32
	primary := httptest.NewServer(http.NotFoundHandler())
	defer primary.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mirrorHits.Add(1)
		_, _ = io.WriteString(w, "x")
	}))
	defer mirror.Close()

	c := newTestClient(t, primary.URL, mirror.URL)
	_, err := c.Detail(context.Background(), "9")

	var se *HTTPStatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		t.Fatalf("期望 HTTP 404，实际 err=%v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Endpoint != "detail" || len(e.Attempts) != 1 {
		t.Fatalf("期望 detail 单次尝试轨迹，实际 err=%v", err)
	}
	if mirrorHits.Load() != 0 {
		t.Fatalf("404 不应切换镜像")
	}
}

func TestClient_BlockedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>请不要频繁操作，搜索时间间隔为3秒</html>")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "x")
	var be *BlockedError
	if !errors.As(err, &be) || be.Reason != "rate-limit" {
		t.Fatalf("期望 rate-limit，实际 err=%v", err)
	}
}

func TestNew_RejectsRelativeBase(t *testing.T) {
	_, err := New(Options{BaseURL: "vodjp.com", HTTPClient: http.DefaultClient})
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	c, err := New(Options{HTTPClient: http.DefaultClient})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("期望默认站点，实际 %q", c.BaseURL())
	}
	if _, err := url.Parse(c.BaseURL()); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
}
