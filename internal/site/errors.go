package site

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求落在了“验证/拦截/限频”页面。
// 约束：不尝试绕过；上层换镜像或提示用户稍后重试/配置代理。
type BlockedError struct {
	URL    string
	Reason string // 例如 "challenge" / "search-verify" / "rate-limit"
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

// Attempt 记录一次镜像尝试（用于解释回退原因）。
type Attempt struct {
	Mirror string // 镜像 host
	Err    error  // nil 表示成功
}

// Error 是某个站点接口在所有镜像上都失败后的可追溯错误。
type Error struct {
	Endpoint string // "search" / "detail" / "play" ...
	Attempts []Attempt
	Err      error // 最后一次失败
}

func (e *Error) Error() string {
	mirrors := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		mirrors = append(mirrors, a.Mirror)
	}
	return fmt.Sprintf("endpoint=%s mirrors=%s: %v", e.Endpoint, strings.Join(mirrors, ","), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
