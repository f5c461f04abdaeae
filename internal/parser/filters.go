package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// ParseCategoryFilters 解析分类页的筛选分组；缺失的分组为空列表。
func ParseCategoryFilters(html []byte) domain.CategoryFilters {
	f := domain.CategoryFilters{
		Types:     []domain.FilterItem{},
		Regions:   []domain.FilterItem{},
		Years:     []domain.FilterItem{},
		Languages: []domain.FilterItem{},
		Letters:   []domain.FilterItem{},
	}
	doc := newDoc(html)
	if doc == nil {
		return f
	}

	doc.Find("ul.stui-screen__list").Each(func(_ int, ul *goquery.Selection) {
		guard("filter_group", func() {
			label := normSpace(ul.Find("li span").First().Text())
			dst := filterGroup(&f, label)
			if dst == nil {
				return
			}
			ul.Find("li a").Each(func(_ int, a *goquery.Selection) {
				name := normSpace(a.Text())
				href := firstAttr(a, "href")
				if name == "" || href == "" {
					return
				}
				*dst = append(*dst, domain.FilterItem{Name: name, URL: href})
			})
		})
	})
	return f
}

func filterGroup(f *domain.CategoryFilters, label string) *[]domain.FilterItem {
	switch {
	case strings.Contains(label, "类型"), strings.Contains(label, "分类"):
		return &f.Types
	case strings.Contains(label, "地区"):
		return &f.Regions
	case strings.Contains(label, "年份"):
		return &f.Years
	case strings.Contains(label, "语言"):
		return &f.Languages
	case strings.Contains(label, "字母"):
		return &f.Letters
	default:
		return nil
	}
}
