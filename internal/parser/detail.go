package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/episode"
)

// <title> 中标题之后常见的站点后缀起点。
var titleMarkers = []string{"在线观看", "免费在线", "全集", " - ", "_", "|"}

// 描述首句的截断符与长度上限（rune）。
const (
	clauseStops    = "，。,."
	clauseMaxRunes = 30
)

// info 区块里可能出现的全部标签；只有前五类会被取值，其余仅用于截断。
var infoLabels = []string{"导演：", "主演：", "类型：", "分类：", "地区：", "年份：", "语言：", "更新：", "状态：", "又名："}

// ParseMovieDetail 解析详情页。
//
// 约束：每个字段独立解析，任一字段失败只会让该字段为空（部分结果）。
func ParseMovieDetail(html []byte) domain.MovieDetail {
	doc := newDoc(html)
	if doc == nil {
		return domain.MovieDetail{}
	}

	var d domain.MovieDetail
	guard("description", func() { d.Description = parseDescription(doc) })
	guard("title", func() { d.Title = parseTitle(doc, d.Description) })
	guard("cover", func() {
		img := doc.Find(".stui-content__thumb img").First()
		d.CoverURL = firstAttr(img, "data-original", "src")
	})
	guard("info", func() { parseInfo(doc, &d) })
	guard("episodes", func() { d.Episodes = parseEpisodes(doc) })
	guard("id", func() { d.ID = detailID(doc, d.Episodes) })

	log.Debug("详情解析完成", "id", d.ID, "title", d.Title, "episodes", len(d.Episodes))
	return d
}

func parseTitle(doc *goquery.Document, desc string) string {
	h := doc.Find(".stui-content__detail h1.title").First()
	if h.Length() > 0 {
		c := h.Clone()
		c.Find("span.score, .score").Remove()
		if t := normSpace(c.Text()); t != "" {
			return t
		}
	}

	if t := titleFromHead(normSpace(doc.Find("title").First().Text())); t != "" {
		return t
	}
	return leadingClause(desc)
}

func titleFromHead(s string) string {
	if s == "" {
		return ""
	}
	cut := len(s)
	for _, m := range titleMarkers {
		if i := strings.Index(s, m); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(s[:cut])
}

func leadingClause(desc string) string {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	if i := strings.IndexAny(desc, clauseStops); i >= 0 {
		desc = desc[:i]
	}
	if utf8.RuneCountInString(desc) > clauseMaxRunes {
		desc = string([]rune(desc)[:clauseMaxRunes])
	}
	return strings.TrimSpace(desc)
}

func parseDescription(doc *goquery.Document) string {
	t := firstText(doc.Selection, ".detail-content", ".detail-sketch", ".desc")
	t = strings.TrimPrefix(t, "简介：")
	t = strings.TrimPrefix(t, "简介:")
	return strings.TrimSpace(t)
}

func parseInfo(doc *goquery.Document, d *domain.MovieDetail) {
	doc.Find(".stui-content__detail p.data").Each(func(_ int, s *goquery.Selection) {
		text := normLabels(normSpace(s.Text()))
		setOnce(&d.Director, infoValue(text, "导演："))
		setOnce(&d.Actors, infoValue(text, "主演："))
		setOnce(&d.Genre, infoValue(text, "类型："))
		setOnce(&d.Genre, infoValue(text, "分类："))
		setOnce(&d.Area, infoValue(text, "地区："))
		setOnce(&d.Year, infoValue(text, "年份："))
	})
}

// normLabels 把半角冒号的标签统一成全角形式。
func normLabels(s string) string {
	for _, l := range infoLabels {
		half := strings.TrimSuffix(l, "：") + ":"
		s = strings.ReplaceAll(s, half, l)
	}
	return s
}

// infoValue 取 label 之后、下一个已知标签之前的文本。
func infoValue(text, label string) string {
	i := strings.Index(text, label)
	if i < 0 {
		return ""
	}
	rest := text[i+len(label):]
	end := len(rest)
	for _, l := range infoLabels {
		if j := strings.Index(rest, l); j >= 0 && j < end {
			end = j
		}
	}
	return strings.Trim(strings.TrimSpace(rest[:end]), "/ ")
}

func setOnce(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func parseEpisodes(doc *goquery.Document) []domain.Episode {
	out := make([]domain.Episode, 0, 32)
	seen := map[string]struct{}{}
	doc.Find(".stui-content__playlist li a").Each(func(_ int, s *goquery.Selection) {
		href := firstAttr(s, "href")
		if href == "" {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}

		name := normSpace(s.Text())
		if name == "" {
			name = firstAttr(s, "title")
		}
		if name == "" {
			name = fmt.Sprintf("第%d集", len(out)+1)
		}
		out = append(out, domain.Episode{Name: name, URL: href})
	})
	return out
}

func detailID(doc *goquery.Document, eps []domain.Episode) string {
	if id := ParseMovieID(firstAttr(doc.Find("link[rel='canonical']").First(), "href")); id != "" {
		return id
	}
	if id := ParseMovieID(firstAttr(doc.Find("meta[property='og:url']").First(), "content")); id != "" {
		return id
	}
	if len(eps) == 0 {
		return ""
	}
	c, _, _ := episode.ParseIDs(eps[0].URL)
	return c
}
