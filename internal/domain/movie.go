package domain

// Movie 是列表页解析得到的轻量记录（不含剧集）。
//
// 约束：ID 由站点分配且非空；Identity = ID。
type Movie struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CoverURL    string `json:"cover_url"`
	Description string `json:"description"`
	PlayURL     string `json:"play_url"`
}

// MovieDetail 是详情页解析得到的完整记录。
//
// 约束：
// - Episodes 顺序即播放顺序（上一集/下一集依赖列表位置）
// - ID 在详情页缺失时可由首个剧集 URL 推导
type MovieDetail struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CoverURL    string    `json:"cover_url"`
	Description string    `json:"description"`
	Director    string    `json:"director"`
	Actors      string    `json:"actors"`
	Genre       string    `json:"genre"`
	Area        string    `json:"area"`
	Year        string    `json:"year"`
	Episodes    []Episode `json:"episodes"`
}

// Episode 是一个可播放单元；URL 形如 /jpplay/<contentId>-<setId>-<nodeId>.html。
type Episode struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Summary 把详情降级为列表记录（收藏/历史展示用）。
func (d MovieDetail) Summary() Movie {
	return Movie{
		ID:          d.ID,
		Title:       d.Title,
		CoverURL:    d.CoverURL,
		Description: d.Description,
	}
}

// EpisodeIndex 返回 episodeURL 在剧集列表中的位置；不存在返回 -1。
func (d MovieDetail) EpisodeIndex(episodeURL string) int {
	for i := range d.Episodes {
		if d.Episodes[i].URL == episodeURL {
			return i
		}
	}
	return -1
}

// Next 返回 episodeURL 的下一集。
func (d MovieDetail) Next(episodeURL string) (Episode, bool) {
	i := d.EpisodeIndex(episodeURL)
	if i < 0 || i+1 >= len(d.Episodes) {
		return Episode{}, false
	}
	return d.Episodes[i+1], true
}

// Prev 返回 episodeURL 的上一集。
func (d MovieDetail) Prev(episodeURL string) (Episode, bool) {
	i := d.EpisodeIndex(episodeURL)
	if i <= 0 {
		return Episode{}, false
	}
	return d.Episodes[i-1], true
}
