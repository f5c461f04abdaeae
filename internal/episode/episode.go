package episode

import (
	"fmt"
	"regexp"
	"strings"
)

// 剧集页路径：/jpplay/<contentId>-<setId>-<nodeId>.html。
// 注意：允许前缀为绝对 URL、后缀带 query/fragment，外部站点给出的 href 并不统一。
var playPathRE = regexp.MustCompile(`/jpplay/(\d+)-(\d+)-(\d+)\.html`)

// IDs 是请求播放地址所需的三段路径参数。
type IDs struct {
	ContentID string
	SetID     string
	NodeID    string
}

// Valid 判断三段是否都非空（ParseIDs 失配时三段全部为空）。
func (i IDs) Valid() bool {
	return i.ContentID != "" && i.SetID != "" && i.NodeID != ""
}

// Path 还原站点相对路径；无效时返回空串。
func (i IDs) Path() string {
	if !i.Valid() {
		return ""
	}
	return fmt.Sprintf("/jpplay/%s-%s-%s.html", i.ContentID, i.SetID, i.NodeID)
}

// ParseIDs 从剧集 URL 中提取 (contentId, setId, nodeId)。
//
// 约束：不匹配时返回三个空串，不视为错误（剧集 URL 来自不受控的外部页面）。
func ParseIDs(u string) (contentID, setID, nodeID string) {
	m := playPathRE.FindStringSubmatch(strings.TrimSpace(u))
	if len(m) != 4 {
		return "", "", ""
	}
	return m[1], m[2], m[3]
}

// Parse 是 ParseIDs 的结构体版本。
func Parse(u string) IDs {
	c, s, n := ParseIDs(u)
	return IDs{ContentID: c, SetID: s, NodeID: n}
}
