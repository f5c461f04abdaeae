package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli"

	"github.com/John-Robertt/jianpian/internal/domain"
	"github.com/John-Robertt/jianpian/internal/episode"
	"github.com/John-Robertt/jianpian/internal/parser"
)

// withRuntime 装配依赖并提供可被 Ctrl-C 取消的 context（取消的解析不会写缓存）。
func withRuntime(o *outputs, fn func(ctx context.Context, c *cli.Context, rt *runtime) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		rt, err := setup(c, o)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, c, rt)
	}
}

func pagesFlag() cli.IntFlag {
	return cli.IntFlag{Name: "pages", Value: 1, Usage: "连续加载的页数"}
}

func makeSearchCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "按关键字搜索",
		ArgsUsage: "<keyword>",
		Flags:     []cli.Flag{pagesFlag()},
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			kw := strings.TrimSpace(strings.Join(c.Args(), " "))
			if kw == "" {
				return errors.New("缺少关键字")
			}
			if err := rt.sess.Search(ctx, kw); err != nil {
				return err
			}
			for i := 1; i < c.Int("pages"); i++ {
				before := len(rt.sess.State().Movies)
				if err := rt.sess.LoadNextPage(ctx); err != nil {
					return err
				}
				if len(rt.sess.State().Movies) == before {
					break
				}
			}
			return o.movies(c, rt.sess.State().Movies)
		}),
	}
}

func makeHotCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:  "hot",
		Usage: "首页热播",
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			if err := rt.sess.LoadHot(ctx); err != nil {
				return err
			}
			return o.movies(c, rt.sess.State().HotMovies)
		}),
	}
}

func makeCategoryCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:      "category",
		Aliases:   []string{"c"},
		Usage:     "浏览分类（可按筛选项名称过滤）",
		ArgsUsage: "<category-id>",
		Flags: []cli.Flag{
			pagesFlag(),
			cli.StringFlag{Name: "filter", Usage: "筛选项名称，例如 动作 / 大陆 / 2024"},
		},
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			id, err := strconv.Atoi(c.Args().First())
			if err != nil || id <= 0 {
				return fmt.Errorf("非法分类 id：%q", c.Args().First())
			}
			if err := rt.sess.SearchByCategory(ctx, id); err != nil {
				return err
			}
			st := rt.sess.State()

			if name := strings.TrimSpace(c.String("filter")); name != "" {
				item, ok := findFilter(st.CategoryFilters, name)
				if !ok {
					return fmt.Errorf("分类 %d 没有筛选项 %q", id, name)
				}
				if err := rt.sess.ApplyFilter(ctx, item); err != nil {
					return err
				}
				return o.movies(c, rt.sess.State().Movies)
			}

			for i := 1; i < c.Int("pages"); i++ {
				before := len(rt.sess.State().Movies)
				if err := rt.sess.LoadCategoryNextPage(ctx); err != nil {
					return err
				}
				if len(rt.sess.State().Movies) == before {
					break
				}
			}
			o.filters(c, st.CategoryFilters)
			return o.movies(c, rt.sess.State().Movies)
		}),
	}
}

func findFilter(f domain.CategoryFilters, name string) (domain.FilterItem, bool) {
	for _, g := range [][]domain.FilterItem{f.Types, f.Regions, f.Years, f.Languages, f.Letters} {
		for _, it := range g {
			if it.Name == name {
				return it, true
			}
		}
	}
	return domain.FilterItem{}, false
}

func makeDetailCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:      "detail",
		Aliases:   []string{"d"},
		Usage:     "查看详情并准备全部剧集的播放地址（优先使用缓存）",
		ArgsUsage: "<movie-id>",
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			id := strings.TrimSpace(c.Args().First())
			if id == "" {
				return errors.New("缺少影片 id")
			}
			if err := rt.sess.OpenMovie(ctx, id); err != nil {
				return err
			}
			st := rt.sess.State()
			if st.CurrentMovie == nil {
				return fmt.Errorf("影片 %s 加载失败", id)
			}
			return o.detail(c, *st.CurrentMovie, st.PlayURLs)
		}),
	}
}

func makeRefreshCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:      "refresh",
		Usage:     "忽略缓存，重新解析全部剧集的播放地址",
		ArgsUsage: "<movie-id>",
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			id := strings.TrimSpace(c.Args().First())
			if id == "" {
				return errors.New("缺少影片 id")
			}
			_, cached := rt.urls.Get(id)
			if err := rt.sess.OpenMovie(ctx, id); err != nil {
				return err
			}
			st := rt.sess.State()
			if st.CurrentMovie == nil {
				return fmt.Errorf("影片 %s 加载失败", id)
			}
			// 未命中缓存时 OpenMovie 已经完整解析过一次。
			if cached {
				if err := rt.sess.RefreshURLs(ctx, *st.CurrentMovie); err != nil {
					return err
				}
				st = rt.sess.State()
			}
			return o.detail(c, *st.CurrentMovie, st.PlayURLs)
		}),
	}
}

type playOutput struct {
	MovieID    string `json:"movie_id,omitempty"`
	Episode    string `json:"episode,omitempty"`
	EpisodeURL string `json:"episode_url"`
	URL        string `json:"url"`
	PositionMs int64  `json:"position_ms,omitempty"`
}

func makePlayCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:      "play",
		Aliases:   []string{"p"},
		Usage:     "输出单集的播放地址；传影片 id 时默认续播历史中的剧集",
		ArgsUsage: "<episode-url> | <movie-id>",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "episode", Usage: "第几集（从 1 开始）；影片 id 模式下有效"},
		},
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			arg := strings.TrimSpace(c.Args().First())
			if arg == "" {
				return errors.New("缺少剧集地址或影片 id")
			}

			out := playOutput{EpisodeURL: arg}
			if !episode.Parse(arg).Valid() {
				ep, pos, err := pickEpisode(ctx, rt, arg, c.Int("episode"))
				if err != nil {
					return err
				}
				out = playOutput{MovieID: arg, Episode: ep.Name, EpisodeURL: ep.URL, PositionMs: pos}
			}

			out.URL = rt.sess.PlayURL(ctx, out.EpisodeURL)
			if out.URL == "" {
				return fmt.Errorf("未找到播放地址：%s", out.EpisodeURL)
			}
			if o.jsonMode(c) {
				return o.emitJSON(out)
			}
			if out.Episode != "" {
				fmt.Fprintf(o.stderr, "%s 从 %s 开始\n", out.Episode, formatPosition(out.PositionMs))
			}
			fmt.Fprintln(o.stdout, out.URL)
			return nil
		}),
	}
}

// pickEpisode 选择要播放的剧集：显式 --episode 优先，其次历史记录，最后第一集。
func pickEpisode(ctx context.Context, rt *runtime, movieID string, n int) (domain.Episode, int64, error) {
	if err := rt.sess.OpenMovie(ctx, movieID); err != nil {
		return domain.Episode{}, 0, err
	}
	st := rt.sess.State()
	if st.CurrentMovie == nil || len(st.CurrentMovie.Episodes) == 0 {
		return domain.Episode{}, 0, fmt.Errorf("影片 %s 没有可播放的剧集", movieID)
	}
	d := *st.CurrentMovie
	if n > 0 {
		if n > len(d.Episodes) {
			return domain.Episode{}, 0, fmt.Errorf("影片 %s 只有 %d 集", movieID, len(d.Episodes))
		}
		return d.Episodes[n-1], 0, nil
	}
	if h, ok := rt.sess.History(movieID); ok {
		if i := d.EpisodeIndex(h.EpisodeURL); i >= 0 {
			return d.Episodes[i], h.PlaybackPositionMs, nil
		}
	}
	return d.Episodes[0], 0, nil
}

func makeHistoryCMD(o *outputs) cli.Command {
	list := withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
		if err := rt.sess.LoadHistories(); err != nil {
			return err
		}
		return o.histories(c, rt.sess.State().Histories)
	})
	return cli.Command{
		Name:   "history",
		Usage:  "播放历史",
		Action: list,
		Subcommands: []cli.Command{
			{Name: "list", Usage: "列出播放历史", Action: list},
			{
				Name:      "save",
				Usage:     "记录播放位置（外部播放器回调用）",
				ArgsUsage: "<movie-id> <episode-url> <position-ms>",
				Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
					args := c.Args()
					if len(args) != 3 {
						return errors.New("需要 <movie-id> <episode-url> <position-ms>")
					}
					pos, err := strconv.ParseInt(args.Get(2), 10, 64)
					if err != nil || pos < 0 {
						return fmt.Errorf("非法播放位置：%q", args.Get(2))
					}
					// 只需要标题/封面/剧集名，不解析播放地址。
					if err := rt.sess.OpenDetail(ctx, args.Get(0)); err != nil {
						return err
					}
					st := rt.sess.State()
					if st.CurrentMovie == nil {
						return fmt.Errorf("影片 %s 加载失败", args.Get(0))
					}
					name := args.Get(1)
					if i := st.CurrentMovie.EpisodeIndex(args.Get(1)); i >= 0 {
						name = st.CurrentMovie.Episodes[i].Name
					}
					if err := rt.sess.SaveHistory(args.Get(0), name, args.Get(1), pos); err != nil {
						return err
					}
					return o.histories(c, rt.sess.State().Histories)
				}),
			},
			{
				Name:      "delete",
				Usage:     "删除一部影片的历史",
				ArgsUsage: "<movie-id>",
				Action: withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
					id := strings.TrimSpace(c.Args().First())
					if id == "" {
						return errors.New("缺少影片 id")
					}
					if err := rt.sess.DeleteHistory(id); err != nil {
						return err
					}
					return o.histories(c, rt.sess.State().Histories)
				}),
			},
			{
				Name:  "clear",
				Usage: "清空播放历史",
				Action: withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
					return rt.sess.ClearHistories()
				}),
			},
		},
	}
}

func makeFavoritesCMD(o *outputs) cli.Command {
	list := withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
		rt.sess.LoadFavorites()
		return o.favorites(c, rt.sess.State().Favorites)
	})
	return cli.Command{
		Name:    "favorites",
		Aliases: []string{"fav"},
		Usage:   "收藏",
		Action:  list,
		Subcommands: []cli.Command{
			{Name: "list", Usage: "列出收藏", Action: list},
			{
				Name:      "toggle",
				Usage:     "收藏/取消收藏一部影片",
				ArgsUsage: "<movie-id>",
				Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
					id := strings.TrimSpace(c.Args().First())
					if id == "" {
						return errors.New("缺少影片 id")
					}
					// 只需要标题/封面：直接解析详情页，不触发剧集解析。
					b, err := rt.site.Detail(ctx, id)
					if err != nil {
						return err
					}
					m := parser.ParseMovieDetail(b).Summary()
					m.ID = id
					on, err := rt.sess.ToggleFavorite(m)
					if err != nil {
						return err
					}
					if o.jsonMode(c) {
						return o.emitJSON(map[string]any{"id": id, "favorite": on})
					}
					if on {
						fmt.Fprintf(o.stdout, "已收藏：%s\n", m.Title)
					} else {
						fmt.Fprintf(o.stdout, "已取消收藏：%s\n", m.Title)
					}
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "清空收藏",
				Action: withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
					return rt.sess.ClearFavorites()
				}),
			},
		},
	}
}
