// Package parser 把站点 HTML 解析为领域记录。
//
// 约束：
// - 所有导出函数都是纯函数（只依赖输入 html）
// - 永不向调用方返回错误：单条/单字段失败降级为丢弃或空值，并以 debug 级别记录
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
)

func newDoc(html []byte) *goquery.Document {
	if len(bytes.TrimSpace(html)) == 0 {
		log.Debug("html 为空", "parser", "doc")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		log.Debug("html 解析失败", "parser", "doc", "err", err)
		return nil
	}
	return doc
}

// guard 隔离单个字段的解析：panic 被吞掉并记录，字段保持零值。
func guard(field string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("字段解析失败，已降级为空值", "field", field, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v, ok := s.Attr(n); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := normSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// styleURL 从 style="background-image: url(...)" 中取出地址。
func styleURL(style string) string {
	i := strings.Index(style, "url(")
	if i < 0 {
		return ""
	}
	rest := style[i+len("url("):]
	j := strings.Index(rest, ")")
	if j < 0 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(rest[:j]), `"'`)
}

// ParseMovieID 从 /jpvod/<id>.html 形式的链接中取出 id；不匹配返回空串。
func ParseMovieID(href string) string {
	const prefix = "/jpvod/"
	i := strings.Index(href, prefix)
	if i < 0 {
		return ""
	}
	rest := href[i+len(prefix):]
	j := strings.Index(rest, ".html")
	if j <= 0 {
		return ""
	}
	id := strings.TrimSpace(rest[:j])
	if strings.ContainsAny(id, "/?#") {
		return ""
	}
	return id
}
