package session

import (
	"maps"
	"slices"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// State 是会话对外发布的全部可观察字段。
//
// 约束：订阅者拿到的是快照副本，修改它不会影响会话。
type State struct {
	Movies            []domain.Movie         `json:"movies"`
	Histories         []domain.PlayHistory   `json:"histories"`
	Favorites         []domain.Favorite      `json:"favorites"`
	Loading           bool                   `json:"loading"`
	CurrentMovie      *domain.MovieDetail    `json:"current_movie"`
	CurrentPlayURL    string                 `json:"current_play_url"`
	PlayURLs          map[string]string      `json:"play_urls"`
	CacheProgress     int                    `json:"cache_progress"`
	CacheTotal        int                    `json:"cache_total"`
	HotMovies         []domain.Movie         `json:"hot_movies"`
	ShowSubCategories bool                   `json:"show_sub_categories"`
	CategoryFilters   domain.CategoryFilters `json:"category_filters"`
	Keyword           string                 `json:"keyword"`
	Category          int                    `json:"category"`
}

func (s State) clone() State {
	out := s
	out.Movies = slices.Clone(s.Movies)
	out.Histories = slices.Clone(s.Histories)
	out.Favorites = slices.Clone(s.Favorites)
	out.HotMovies = slices.Clone(s.HotMovies)
	out.PlayURLs = maps.Clone(s.PlayURLs)
	if s.CurrentMovie != nil {
		d := *s.CurrentMovie
		d.Episodes = slices.Clone(d.Episodes)
		out.CurrentMovie = &d
	}
	f := s.CategoryFilters
	out.CategoryFilters = domain.CategoryFilters{
		Types:     slices.Clone(f.Types),
		Regions:   slices.Clone(f.Regions),
		Years:     slices.Clone(f.Years),
		Languages: slices.Clone(f.Languages),
		Letters:   slices.Clone(f.Letters),
	}
	return out
}
