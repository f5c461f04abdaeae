package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// ParseMovieList 解析搜索页/分类页的影片列表。
//
// 约束：只返回 id 与 title 都非空的条目；顺序与页面一致。
func ParseMovieList(html []byte) []domain.Movie {
	doc := newDoc(html)
	if doc == nil {
		return []domain.Movie{}
	}
	return parseItems(doc.Selection)
}

// ParseHotMovies 解析首页“热播”区块；找不到时回退到首个列表。
func ParseHotMovies(html []byte) []domain.Movie {
	doc := newDoc(html)
	if doc == nil {
		return []domain.Movie{}
	}

	var scope *goquery.Selection
	doc.Find(".stui-pannel").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		head := normSpace(s.Find(".stui-pannel__head, .stui-pannel_hd").First().Text())
		if head == "" {
			head = firstText(s, "h3.title", "h3", "h2")
		}
		if strings.Contains(head, "热播") {
			scope = s
			return false
		}
		return true
	})
	if scope == nil {
		scope = doc.Find("ul.stui-vodlist").First()
		if scope.Length() == 0 {
			log.Debug("未找到热播区块", "parser", "hot")
			return []domain.Movie{}
		}
	}
	return parseItems(scope)
}

func parseItems(scope *goquery.Selection) []domain.Movie {
	out := make([]domain.Movie, 0, 24)
	dropped := 0
	scope.Find("li.stui-vodlist__item").Each(func(i int, s *goquery.Selection) {
		var (
			m  domain.Movie
			ok bool
		)
		guard("list_item", func() { m, ok = parseItem(s) })
		if !ok {
			dropped++
			return
		}
		out = append(out, m)
	})
	if dropped > 0 {
		log.Debug("列表条目缺少 id/title，已丢弃", "dropped", dropped, "kept", len(out))
	}
	return out
}

func parseItem(s *goquery.Selection) (domain.Movie, bool) {
	a := s.Find("a.stui-vodlist__thumb").First()
	if a.Length() == 0 {
		a = s.Find("a[href*='/jpvod/']").First()
	}
	href, _ := a.Attr("href")
	id := ParseMovieID(href)

	title := firstText(s, "h4.title", "h4", "h3")
	if title == "" {
		title = firstAttr(a, "title")
	}

	cover := firstAttr(a, "data-original", "data-src")
	if cover == "" {
		cover = styleURL(firstAttr(a, "style"))
	}

	m := domain.Movie{
		ID:          id,
		Title:       title,
		CoverURL:    cover,
		Description: firstText(s, "p.text"),
	}
	return m, m.ID != "" && m.Title != ""
}
