package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/John-Robertt/jianpian/internal/domain"
)

// outputs 决定结果的输出形式。
//
// 约束：stdout 不是终端（或 --json）时，stdout 只输出一个 JSON 值；日志与进度走 stderr。
type outputs struct {
	stdout io.Writer
	stderr io.Writer
}

func (o *outputs) jsonMode(c *cli.Context) bool {
	return c.GlobalBool(jsonFlag) || !isTTY(o.stdout)
}

func (o *outputs) emitJSON(v any) error {
	enc := json.NewEncoder(o.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *outputs) movies(c *cli.Context, ms []domain.Movie) error {
	if ms == nil {
		ms = []domain.Movie{}
	}
	if o.jsonMode(c) {
		return o.emitJSON(ms)
	}
	if len(ms) == 0 {
		fmt.Fprintln(o.stdout, "没有结果")
		return nil
	}
	for i, m := range ms {
		fmt.Fprintf(o.stdout, "%3d. [%s] %s", i+1, m.ID, m.Title)
		if m.Description != "" {
			fmt.Fprintf(o.stdout, "  %s", truncate(m.Description, 40))
		}
		fmt.Fprintln(o.stdout)
	}
	return nil
}

type detailOutput struct {
	Movie    domain.MovieDetail `json:"movie"`
	PlayURLs map[string]string  `json:"play_urls"`
}

func (o *outputs) detail(c *cli.Context, d domain.MovieDetail, urls map[string]string) error {
	if urls == nil {
		urls = map[string]string{}
	}
	if o.jsonMode(c) {
		return o.emitJSON(detailOutput{Movie: d, PlayURLs: urls})
	}
	w := o.stdout
	fmt.Fprintf(w, "%s [%s]\n", d.Title, d.ID)
	for _, kv := range [][2]string{
		{"导演", d.Director}, {"主演", d.Actors}, {"类型", d.Genre}, {"地区", d.Area}, {"年份", d.Year},
	} {
		if kv[1] != "" {
			fmt.Fprintf(w, "  %s: %s\n", kv[0], kv[1])
		}
	}
	if d.Description != "" {
		fmt.Fprintf(w, "  简介: %s\n", truncate(d.Description, 120))
	}
	fmt.Fprintf(w, "剧集 (%d):\n", len(d.Episodes))
	for i, ep := range d.Episodes {
		u := urls[ep.URL]
		if u == "" {
			u = "-"
		}
		fmt.Fprintf(w, "%3d. %s  %s\n", i+1, ep.Name, u)
	}
	return nil
}

func (o *outputs) filters(c *cli.Context, f domain.CategoryFilters) {
	if o.jsonMode(c) || f.Empty() {
		return
	}
	groups := []struct {
		name  string
		items []domain.FilterItem
	}{
		{"类型", f.Types}, {"地区", f.Regions}, {"年份", f.Years}, {"语言", f.Languages}, {"字母", f.Letters},
	}
	for _, g := range groups {
		if len(g.items) == 0 {
			continue
		}
		fmt.Fprintf(o.stdout, "%s:", g.name)
		for _, it := range g.items {
			fmt.Fprintf(o.stdout, " %s", it.Name)
		}
		fmt.Fprintln(o.stdout)
	}
}

func (o *outputs) histories(c *cli.Context, hs []domain.PlayHistory) error {
	if hs == nil {
		hs = []domain.PlayHistory{}
	}
	if o.jsonMode(c) {
		return o.emitJSON(hs)
	}
	if len(hs) == 0 {
		fmt.Fprintln(o.stdout, "没有播放历史")
		return nil
	}
	for i, h := range hs {
		fmt.Fprintf(o.stdout, "%3d. [%s] %s  %s @ %s  %s\n",
			i+1, h.MovieID, h.MovieTitle, h.EpisodeName,
			formatPosition(h.PlaybackPositionMs), humanize.Time(time.UnixMilli(h.TimestampMs)))
	}
	return nil
}

func (o *outputs) favorites(c *cli.Context, fs []domain.Favorite) error {
	if fs == nil {
		fs = []domain.Favorite{}
	}
	if o.jsonMode(c) {
		return o.emitJSON(fs)
	}
	if len(fs) == 0 {
		fmt.Fprintln(o.stdout, "没有收藏")
		return nil
	}
	sorted := append([]domain.Favorite(nil), fs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs > sorted[j].TimestampMs })
	for i, f := range sorted {
		fmt.Fprintf(o.stdout, "%3d. [%s] %s  %s\n", i+1, f.Movie.ID, f.Movie.Title, humanize.Time(time.UnixMilli(f.TimestampMs)))
	}
	return nil
}

// formatPosition 把毫秒位置格式化为 hh:mm:ss。
func formatPosition(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	sec := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
