// Package site 封装视频站点的全部上游接口：只负责拼 URL、发请求、读 body。
//
// 约束：
// - 不解析 HTML（由 parser 负责）
// - 镜像按配置顺序尝试；4xx 不换镜像
// - 详情/首页/分类等 GET 页面进入进程内 LRU（搜索与播放页不缓存）
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/episode"
)

const (
	// DefaultBaseURL 是默认站点。
	DefaultBaseURL = "https://vodjp.com/"

	// DefaultPageCacheTTL 是页面 LRU 的默认有效期。
	DefaultPageCacheTTL = 5 * time.Minute

	maxBodyBytes = 8 << 20
)

// Options 是站点客户端的构造参数。
type Options struct {
	BaseURL string
	// Mirrors 在 BaseURL 传输失败时依次尝试。
	Mirrors []string

	HTTPClient *http.Client

	// PageCacheTTL 为 0 时使用默认值；小于 0 关闭页面缓存。
	PageCacheTTL  time.Duration
	PageCacheSize int

	Logger *log.Logger
}

// Client 是站点接口的统一入口；并发安全。
type Client struct {
	bases []*url.URL
	http  *http.Client
	pages *pageCache
	log   *log.Logger
}

// New 校验 base/mirror 并构造 Client。
func New(opts Options) (*Client, error) {
	if opts.HTTPClient == nil {
		return nil, errors.New("http client 不能为空")
	}
	raw := append([]string{opts.BaseURL}, opts.Mirrors...)
	if strings.TrimSpace(opts.BaseURL) == "" {
		raw[0] = DefaultBaseURL
	}

	bases := make([]*url.URL, 0, len(raw))
	seen := map[string]struct{}{}
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("站点地址无效：%q: %w", s, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("站点地址必须是 http(s) 绝对地址：%q", s)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		if _, ok := seen[u.String()]; ok {
			continue
		}
		seen[u.String()] = struct{}{}
		bases = append(bases, u)
	}

	lg := opts.Logger
	if lg == nil {
		lg = log.Default()
	}

	var pages *pageCache
	ttl := opts.PageCacheTTL
	if ttl == 0 {
		ttl = DefaultPageCacheTTL
	}
	if ttl > 0 {
		pages = newPageCache(opts.PageCacheSize, ttl)
	}

	return &Client{bases: bases, http: opts.HTTPClient, pages: pages, log: lg}, nil
}

// BaseURL 返回首选站点地址。
func (c *Client) BaseURL() string { return c.bases[0].String() }

// Search 以表单 POST 提交关键字（第一页）。
func (c *Client) Search(ctx context.Context, keyword string) ([]byte, error) {
	form := url.Values{"wd": {keyword}}.Encode()
	return c.do(ctx, "search", "", func(base *url.URL) (*http.Request, error) {
		u := base.ResolveReference(&url.URL{Path: "jpsearch/-------------.html"})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// SearchPage 获取搜索结果的第 page 页。
func (c *Client) SearchPage(ctx context.Context, keyword string, page int) ([]byte, error) {
	ref := "jpsearch/" + url.PathEscape(keyword) + "----------" + strconv.Itoa(page) + "---.html"
	return c.get(ctx, "search_page", ref, false)
}

// Category 获取分类首页。
func (c *Client) Category(ctx context.Context, id int) ([]byte, error) {
	return c.get(ctx, "category", "jptype/"+strconv.Itoa(id)+".html", true)
}

// CategoryPage 获取分类列表的第 page 页。
func (c *Client) CategoryPage(ctx context.Context, id, page int) ([]byte, error) {
	return c.get(ctx, "category_page", fmt.Sprintf("jptype/%d-%d.html", id, page), true)
}

// Detail 获取影片详情页。
func (c *Client) Detail(ctx context.Context, id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("movie id 不能为空")
	}
	return c.get(ctx, "detail", "jpvod/"+url.PathEscape(id)+".html", true)
}

// Play 获取剧集播放页（不缓存：播放地址可能带时效签名）。
func (c *Client) Play(ctx context.Context, ids episode.IDs) ([]byte, error) {
	if !ids.Valid() {
		return nil, errors.New("剧集参数不完整")
	}
	return c.get(ctx, "play", strings.TrimPrefix(ids.Path(), "/"), false)
}

// Home 获取首页（热播）。
func (c *Client) Home(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "home", "", true)
}

// Filter 获取筛选链接指向的页面；ref 可以是站点相对路径或绝对地址。
func (c *Client) Filter(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.New("筛选链接不能为空")
	}
	return c.get(ctx, "filter", ref, true)
}

// PurgePages 清空页面缓存（用户主动刷新时使用）。
func (c *Client) PurgePages() { c.pages.purge() }

func (c *Client) get(ctx context.Context, endpoint, ref string, cacheable bool) ([]byte, error) {
	key := endpoint + "|" + ref
	if cacheable {
		if b, ok := c.pages.get(key); ok {
			c.log.Debug("页面缓存命中", "endpoint", endpoint, "ref", ref)
			return b, nil
		}
	}

	b, err := c.do(ctx, endpoint, ref, func(base *url.URL) (*http.Request, error) {
		u, err := resolveRef(base, ref)
		if err != nil {
			return nil, err
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.pages.set(key, b)
	}
	return b, nil
}

// do 依次在各镜像上执行请求；ref 为绝对地址时只尝试一次。
func (c *Client) do(ctx context.Context, endpoint, ref string, build func(base *url.URL) (*http.Request, error)) ([]byte, error) {
	bases := c.bases
	if isAbsolute(ref) {
		bases = bases[:1]
	}

	var attempts []Attempt
	var lastErr error
	for _, base := range bases {
		req, err := build(base)
		if err != nil {
			return nil, err
		}
		b, err := c.send(req)
		if err == nil {
			if len(attempts) > 0 {
				c.log.Info("已切换到镜像", "endpoint", endpoint, "mirror", base.Host, "failed", len(attempts))
			}
			return b, nil
		}
		attempts = append(attempts, Attempt{Mirror: base.Host, Err: err})
		lastErr = err
		c.log.Debug("请求失败", "endpoint", endpoint, "mirror", base.Host, "err", err)
		if ctx.Err() != nil || !shouldFallback(err) {
			break
		}
	}
	return nil, &Error{Endpoint: endpoint, Attempts: attempts, Err: lastErr}
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	if reason := blockedReason(b); reason != "" {
		return nil, &BlockedError{URL: req.URL.String(), Reason: reason}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Location: strings.TrimSpace(resp.Header.Get("Location"))}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}

// shouldFallback：4xx（除 429）说明请求本身有问题，换镜像无意义。
func shouldFallback(err error) bool {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// blockedReason 识别常见的验证/限频页面。
func blockedReason(b []byte) string {
	switch {
	case bytes.Contains(b, []byte("cf-browser-verification")),
		bytes.Contains(b, []byte("/cdn-cgi/challenge-platform/")):
		return "challenge"
	case bytes.Contains(b, []byte("系统安全验证")):
		return "search-verify"
	case bytes.Contains(b, []byte("请不要频繁操作")):
		return "rate-limit"
	default:
		return ""
	}
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "//")
}

func resolveRef(base *url.URL, ref string) (string, error) {
	if strings.HasPrefix(ref, "//") {
		return base.Scheme + ":" + ref, nil
	}
	if isAbsolute(ref) {
		return ref, nil
	}
	r, err := url.Parse(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}
