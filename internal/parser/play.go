package parser

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

// 播放页内嵌的播放器配置变量名。
const playerMarker = "player_aaaa"

var (
	playURLRE = regexp.MustCompile(`"url"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	encryptRE = regexp.MustCompile(`"encrypt"\s*:\s*"?(\d)`)
)

// ParsePlayURL 从播放页中提取最终可播放地址；找不到返回空串。
func ParsePlayURL(html []byte) string {
	doc := newDoc(html)
	if doc == nil {
		return ""
	}

	script := ""
	fallback := ""
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := s.Text()
		if strings.Contains(t, playerMarker) {
			script = t
			return false
		}
		if fallback == "" && strings.Contains(t, `"url":`) {
			fallback = t
		}
		return true
	})
	if script == "" {
		script = fallback
	}
	if script == "" {
		log.Debug("播放页未找到播放器脚本", "parser", "play")
		return ""
	}

	var out string
	guard("play_url", func() { out = extractPlayURL(script) })
	return out
}

func extractPlayURL(script string) string {
	m := playURLRE.FindStringSubmatch(script)
	if len(m) != 2 {
		return ""
	}
	raw := unescapeJSString(m[1])

	enc := ""
	if em := encryptRE.FindStringSubmatch(script); len(em) == 2 {
		enc = em[1]
	}
	switch enc {
	case "1":
		if u, err := url.QueryUnescape(raw); err == nil {
			raw = u
		}
	case "2":
		if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
			if u, err := url.QueryUnescape(string(b)); err == nil {
				raw = u
			} else {
				raw = string(b)
			}
		}
	}
	return strings.TrimSpace(raw)
}

// unescapeJSString 处理 `\/` 与常见 JSON 转义；无法解析时只替换斜杠。
func unescapeJSString(s string) string {
	s = strings.ReplaceAll(s, `\/`, "/")
	if !strings.Contains(s, `\`) {
		return s
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}
