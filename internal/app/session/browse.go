package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/parser"
)

// Search 按关键字搜索（第 1 页），结果替换 Movies。
//
// 约束：关键字、分页游标与 Movies 只在请求成功后一起提交；失败时状态不变。
func (s *Session) Search(ctx context.Context, keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return errors.New("关键字不能为空")
	}

	seq := s.stage()
	done := s.beginLoading()
	defer done()

	b, err := s.site.Search(ctx, keyword)
	if err != nil {
		s.log.Error("搜索失败", "keyword", keyword, "err", err)
		return fmt.Errorf("搜索 %q: %w", keyword, err)
	}
	movies := parser.ParseMovieList(b)
	s.log.Info("搜索完成", "keyword", keyword, "count", len(movies))

	s.updateIf(s.isPending(seq), func(st *State) {
		s.listGen++
		s.keyword = keyword
		s.search = cursor{page: 1, end: len(movies) == 0}
		st.Keyword = keyword
		st.ShowSubCategories = false
		st.Movies = movies
	})
	return nil
}

// LoadNextPage 加载搜索结果的下一页并追加到 Movies。
//
// 约束：已到末页、正在加载或尚未搜索时为 no-op；失败时回滚页码。
func (s *Session) LoadNextPage(ctx context.Context) error {
	s.mu.Lock()
	keyword := s.keyword
	s.mu.Unlock()
	if keyword == "" {
		return nil
	}
	return s.nextPage(ctx, &s.search, "search", func(page int) ([]byte, error) {
		return s.site.SearchPage(ctx, keyword, page)
	})
}

// SearchByCategory 打开分类第 1 页：结果替换 Movies，并解析筛选项。
func (s *Session) SearchByCategory(ctx context.Context, id int) error {
	if id <= 0 {
		return fmt.Errorf("非法分类 id：%d", id)
	}

	seq := s.stage()
	done := s.beginLoading()
	defer done()

	b, err := s.site.Category(ctx, id)
	if err != nil {
		s.log.Error("加载分类失败", "category", id, "err", err)
		return fmt.Errorf("加载分类 %d: %w", id, err)
	}
	movies := parser.ParseMovieList(b)
	filters := parser.ParseCategoryFilters(b)
	s.log.Info("分类加载完成", "category", id, "count", len(movies))

	s.updateIf(s.isPending(seq), func(st *State) {
		s.listGen++
		s.category = id
		s.catCursor = cursor{page: 1, end: len(movies) == 0}
		st.Category = id
		st.ShowSubCategories = true
		st.Movies = movies
		st.CategoryFilters = filters
	})
	return nil
}

// LoadCategoryNextPage 加载当前分类的下一页（与搜索分页相互独立）。
func (s *Session) LoadCategoryNextPage(ctx context.Context) error {
	s.mu.Lock()
	id := s.category
	s.mu.Unlock()
	if id <= 0 {
		return nil
	}
	return s.nextPage(ctx, &s.catCursor, "category", func(page int) ([]byte, error) {
		return s.site.CategoryPage(ctx, id, page)
	})
}

// ApplyFilter 打开筛选链接，结果替换 Movies。
//
// 约束：筛选页的分页规则与分类页不同，应用筛选后分类翻页视为已到末页。
func (s *Session) ApplyFilter(ctx context.Context, item domain.FilterItem) error {
	ref := strings.TrimSpace(item.URL)
	if ref == "" {
		return errors.New("筛选链接为空")
	}

	seq := s.stage()
	done := s.beginLoading()
	defer done()

	b, err := s.site.Filter(ctx, ref)
	if err != nil {
		s.log.Error("加载筛选失败", "filter", item.Name, "url", ref, "err", err)
		return fmt.Errorf("加载筛选 %q: %w", item.Name, err)
	}
	movies := parser.ParseMovieList(b)
	s.log.Info("筛选完成", "filter", item.Name, "count", len(movies))

	s.updateIf(s.isPending(seq), func(st *State) {
		s.listGen++
		s.catCursor.end = true
		st.Movies = movies
	})
	return nil
}

// ClearSearchResults 清空 Movies；进行中的翻页结果会被丢弃。
func (s *Session) ClearSearchResults() {
	s.update(func(st *State) {
		s.pending++
		s.listGen++
		st.Movies = nil
	})
}

// LoadHot 加载首页热播列表。
func (s *Session) LoadHot(ctx context.Context) error {
	done := s.beginLoading()
	defer done()

	b, err := s.site.Home(ctx)
	if err != nil {
		s.log.Error("加载热播失败", "err", err)
		return fmt.Errorf("加载热播: %w", err)
	}
	hot := parser.ParseHotMovies(b)
	s.log.Info("热播加载完成", "count", len(hot))
	s.update(func(st *State) { st.HotMovies = hot })
	return nil
}

// stage 登记一次新的列表请求；之后登记的请求（或清空）会使它的结果作废。
func (s *Session) stage() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	return s.pending
}

func (s *Session) isPending(seq uint64) func(*State) bool {
	return func(*State) bool { return s.pending == seq }
}

// nextPage 是两条分页流共享的“翻页 -> 追加 -> 失败回滚”逻辑。
func (s *Session) nextPage(ctx context.Context, c *cursor, kind string, fetch func(page int) ([]byte, error)) error {
	s.mu.Lock()
	if c.end || c.loading {
		s.mu.Unlock()
		return nil
	}
	c.loading = true
	c.page++
	page := c.page
	gen := s.listGen
	s.mu.Unlock()

	done := s.beginLoading()
	defer done()
	defer func() {
		s.mu.Lock()
		c.loading = false
		s.mu.Unlock()
	}()

	b, err := fetch(page)
	if err != nil {
		s.mu.Lock()
		if s.listGen == gen {
			c.page--
		}
		s.mu.Unlock()
		s.log.Error("翻页失败", "kind", kind, "page", page, "err", err)
		return fmt.Errorf("加载第 %d 页: %w", page, err)
	}
	movies := parser.ParseMovieList(b)
	s.log.Debug("翻页完成", "kind", kind, "page", page, "count", len(movies))

	s.updateIf(func(*State) bool { return s.listGen == gen }, func(st *State) {
		if len(movies) == 0 {
			c.end = true
			return
		}
		st.Movies = append(st.Movies, movies...)
	})
	return nil
}
