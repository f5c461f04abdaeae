package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli"
)

const (
	configFlag   = "config"
	dataDirFlag  = "data-dir"
	baseURLFlag  = "base-url"
	storeFlag    = "store"
	logLevelFlag = "log-level"
	logJSONFlag  = "log-json"
	insecureFlag = "insecure"
	jsonFlag     = "json"
)

func main() {
	// .env 只是便利：不存在时静默使用系统环境变量。
	_ = godotenv.Load()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "错误：%v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "jianpian"
	app.Usage = "影视站点的搜索/详情/播放地址解析与本地历史收藏"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.Flags = globalFlags()

	o := &outputs{stdout: stdout, stderr: stderr}
	app.Commands = []cli.Command{
		makeSearchCMD(o),
		makeHotCMD(o),
		makeCategoryCMD(o),
		makeDetailCMD(o),
		makeRefreshCMD(o),
		makePlayCMD(o),
		makeHistoryCMD(o),
		makeFavoritesCMD(o),
		makeCacheCMD(o),
		makeServeCMD(o),
	}
	return app
}

// globalFlags 只声明 CLI 层；环境变量与配置文件的合并在 config 包完成。
func globalFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  configFlag,
			Usage: "配置文件路径（指定后必须存在；默认读取数据目录下的 jianpian.json）",
		},
		cli.StringFlag{
			Name:  dataDirFlag,
			Usage: "数据目录（历史/收藏/播放地址缓存/封面）",
		},
		cli.StringFlag{
			Name:  baseURLFlag,
			Usage: "站点地址",
		},
		cli.StringFlag{
			Name:  storeFlag,
			Usage: "存储后端：file|sqlite",
		},
		cli.StringFlag{
			Name:  logLevelFlag,
			Usage: "日志级别：debug|info|warn|error",
		},
		cli.BoolFlag{
			Name:  logJSONFlag,
			Usage: "日志输出 JSON 行",
		},
		cli.BoolFlag{
			Name:  insecureFlag,
			Usage: "关闭 TLS 证书校验（仅用于证书有问题的镜像；会输出警告）",
		},
		cli.BoolFlag{
			Name:  jsonFlag,
			Usage: "stdout 输出 JSON（stdout 不是终端时默认开启）",
		},
	}
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// pickProgressWriter 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	if isTTY(stderr) {
		return stderr, true
	}
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
