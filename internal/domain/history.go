package domain

import "strings"

// MaxHistory 是播放历史的容量上限（超出后按时间淘汰最旧条目）。
const MaxHistory = 20

// PlayHistory 记录某部影片最近一次的播放位置。
//
// 约束：同一 MovieID 至多一条（后写覆盖先写）。
type PlayHistory struct {
	MovieID            string `json:"movie_detail_id"`
	MovieTitle         string `json:"movie_title"`
	MovieCoverURL      string `json:"movie_cover_url"`
	EpisodeName        string `json:"episode_name"`
	EpisodeURL         string `json:"episode_url"`
	PlaybackPositionMs int64  `json:"playback_position"`
	TimestampMs        int64  `json:"timestamp"`
}

// Complete 判断历史记录的必填字段是否齐全（坏记录会在加载时被清理）。
func (h PlayHistory) Complete() bool {
	for _, s := range []string{h.MovieID, h.MovieTitle, h.MovieCoverURL, h.EpisodeName, h.EpisodeURL} {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// AsMovie 把历史记录转换为列表记录（无搜索结果时用历史填充首页）。
func (h PlayHistory) AsMovie() Movie {
	return Movie{ID: h.MovieID, Title: h.MovieTitle, CoverURL: h.MovieCoverURL}
}

// Favorite 是一条收藏；同一 movie id 至多一条，数量不设上限。
type Favorite struct {
	Movie       Movie `json:"movie"`
	TimestampMs int64 `json:"timestamp"`
}

// PlayURLEntry 是某部影片的剧集 -> 播放地址映射缓存。
type PlayURLEntry struct {
	MovieID     string            `json:"movie_id"`
	URLs        map[string]string `json:"urls"`
	TimestampMs int64             `json:"timestamp"`
}
