package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli"

	"github.com/John-Robertt/jianpian/internal/app/session"
	"github.com/John-Robertt/jianpian/internal/config"
	"github.com/John-Robertt/jianpian/internal/infra/cache"
	"github.com/John-Robertt/jianpian/internal/infra/httpx"
	"github.com/John-Robertt/jianpian/internal/infra/logx"
	"github.com/John-Robertt/jianpian/internal/site"
	"github.com/John-Robertt/jianpian/internal/store"
	"github.com/John-Robertt/jianpian/internal/store/kv"
)

// runtime 是一次命令执行所需的全部依赖。
type runtime struct {
	eff    config.EffectiveConfig
	log    *log.Logger
	kv     kv.Store
	site   *site.Client
	urls   *store.PlayURLCache
	sess   *session.Session
	covers *cache.Store
	ui     *progressUI
}

func cliArgs(c *cli.Context) config.CLIArgs {
	return config.CLIArgs{
		ConfigPath:  c.GlobalString(configFlag),
		DataDir:     c.GlobalString(dataDirFlag),
		BaseURL:     c.GlobalString(baseURLFlag),
		Store:       c.GlobalString(storeFlag),
		Listen:      c.String("listen"),
		LogLevel:    c.GlobalString(logLevelFlag),
		Insecure:    c.GlobalBool(insecureFlag),
		InsecureSet: c.GlobalIsSet(insecureFlag),
	}
}

// setup 读取配置并装配依赖；调用方负责 Close。
func setup(c *cli.Context, o *outputs) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("读取当前目录失败：%w", err)
	}
	eff, err := config.LoadEffective(cwd, cliArgs(c), os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.Code(err), err)
	}

	lg := logx.Install(logx.Options{Level: eff.LogLevel, JSON: c.GlobalBool(logJSONFlag), Out: o.stderr})
	if eff.ConfigPath != "" {
		lg.Debug("已读取配置文件", "path", eff.ConfigPath)
	}

	netOpts := httpx.Options{ProxyURL: eff.ProxyURL, InsecureSkipVerify: eff.InsecureSkipVerify, Logger: lg}
	hc, err := httpx.NewSiteClient(netOpts)
	if err != nil {
		return nil, fmt.Errorf("初始化网络失败：%w", err)
	}
	sc, err := site.New(site.Options{
		BaseURL:      eff.BaseURL,
		Mirrors:      eff.Mirrors,
		HTTPClient:   hc,
		PageCacheTTL: eff.PageCacheTTL,
		Logger:       lg,
	})
	if err != nil {
		return nil, err
	}

	kvs, err := kv.Open(eff.Store, eff.DataDir)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败：%w", err)
	}

	rt := &runtime{eff: eff, log: lg, kv: kvs, site: sc}
	rt.urls = store.NewPlayURLCache(kvs, eff.PlayURLTTL, lg)

	var obs session.Observer
	if w, ok := pickProgressWriter(o.stdout, o.stderr); ok {
		rt.ui = newProgressUI(w)
		obs = rt.ui
	}
	rt.sess, err = session.New(session.Deps{
		Site:         sc,
		PlayURLs:     rt.urls,
		History:      store.NewHistoryStore(kvs, lg),
		Favorites:    store.NewFavoriteStore(kvs, lg),
		Logger:       lg,
		Observer:     obs,
		SaveInterval: eff.PositionSaveInterval,
	})
	if err != nil {
		_ = kvs.Close()
		return nil, err
	}

	ic, err := httpx.NewImageClient(netOpts)
	if err != nil {
		_ = kvs.Close()
		return nil, fmt.Errorf("初始化图片网络失败：%w", err)
	}
	rt.covers = cache.New(eff.DataDir, false)
	rt.covers.HTTP = ic
	rt.covers.Log = lg
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.ui != nil {
		rt.ui.Close()
	}
	if err := rt.kv.Close(); err != nil {
		rt.log.Warn("关闭存储失败", "err", err)
	}
}
