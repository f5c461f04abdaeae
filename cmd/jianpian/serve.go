package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/John-Robertt/jianpian/internal/api"
)

func makeServeCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:  "serve",
		Usage: "启动 HTTP/JSON 服务（含 SSE 状态推送与封面缓存）",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "listen", Usage: "监听地址，例如 :8080"},
			cli.StringSliceFlag{Name: "allow-origin", Usage: "允许的跨域来源（可重复；默认任意）"},
			cli.BoolFlag{Name: "covers-readonly", Usage: "封面缓存只读：不写盘、不清理（数据目录只读时使用）"},
		},
		Action: withRuntime(o, func(ctx context.Context, c *cli.Context, rt *runtime) error {
			rt.covers.ReadOnly = c.Bool("covers-readonly")
			pruneCovers(rt)

			// 历史/收藏先加载一次，SSE 客户端连上即可拿到首页数据。
			if err := rt.sess.LoadHistories(); err != nil {
				rt.log.Warn("加载历史失败", "err", err)
			}
			rt.sess.LoadFavorites()

			r := api.NewRouter(api.Options{
				Session:      rt.sess,
				Covers:       rt.covers,
				Logger:       rt.log,
				BaseContext:  ctx,
				AllowOrigins: c.StringSlice("allow-origin"),
				Release:      rt.eff.LogLevel != "debug",
			})
			srv := &http.Server{
				Addr:              rt.eff.Listen,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				MaxHeaderBytes:    1 << 20,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.log.Info("服务启动", "listen", rt.eff.Listen, "data_dir", rt.eff.DataDir, "store", rt.eff.Store)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("服务启动失败：%w", err)
				}
				return nil
			case <-ctx.Done():
			}

			rt.log.Info("正在关闭服务...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("服务强制关闭：%w", err)
			}
			rt.log.Info("服务已退出")
			return nil
		}),
	}
}

// pruneCovers 在启动时把封面缓存收敛到上限内；只读时跳过。
func pruneCovers(rt *runtime) {
	if rt.covers.ReadOnly {
		rt.log.Info("封面缓存只读，跳过清理")
		return
	}
	if n, freed, err := rt.covers.Prune(rt.eff.CoverCacheMaxBytes); err != nil {
		rt.log.Warn("清理封面缓存失败", "err", err)
	} else if n > 0 {
		rt.log.Info("已清理封面缓存", "files", n, "freed", humanize.Bytes(uint64(freed)))
	}
}

func makeCacheCMD(o *outputs) cli.Command {
	return cli.Command{
		Name:  "cache",
		Usage: "本地缓存维护",
		Subcommands: []cli.Command{
			{
				Name:  "prune-covers",
				Usage: "按上限清理封面缓存（最久未修改的先删）",
				Flags: []cli.Flag{
					cli.Int64Flag{Name: "max-mb", Usage: "容量上限（MB）；默认取配置"},
				},
				Action: withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
					limit := rt.eff.CoverCacheMaxBytes
					if c.IsSet("max-mb") {
						limit = c.Int64("max-mb") << 20
					}
					n, freed, err := rt.covers.Prune(limit)
					if err != nil {
						return err
					}
					if o.jsonMode(c) {
						return o.emitJSON(map[string]any{"deleted": n, "freed_bytes": freed})
					}
					fmt.Fprintf(o.stdout, "删除 %d 个封面，释放 %s\n", n, humanize.Bytes(uint64(freed)))
					return nil
				}),
			},
			{
				Name:  "clear-urls",
				Usage: "清空播放地址缓存",
				Action: withRuntime(o, func(_ context.Context, c *cli.Context, rt *runtime) error {
					if err := rt.urls.Clear(); err != nil {
						return err
					}
					rt.site.PurgePages()
					if !o.jsonMode(c) {
						fmt.Fprintln(o.stdout, "播放地址缓存已清空")
					}
					return nil
				}),
			},
		},
	}
}
