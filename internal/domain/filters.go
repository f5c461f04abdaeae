package domain

// FilterItem 是分类页上的一个筛选链接。
type FilterItem struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CategoryFilters 是分类页解析出的筛选分组；缺失的分组为空列表。
type CategoryFilters struct {
	Types     []FilterItem `json:"types"`
	Regions   []FilterItem `json:"regions"`
	Years     []FilterItem `json:"years"`
	Languages []FilterItem `json:"languages"`
	Letters   []FilterItem `json:"letters"`
}

// Empty 判断是否没有任何筛选项。
func (f CategoryFilters) Empty() bool {
	return len(f.Types)+len(f.Regions)+len(f.Years)+len(f.Languages)+len(f.Letters) == 0
}
