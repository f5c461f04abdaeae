package logx

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Options 控制日志输出。
type Options struct {
	// Level: debug / info / warn / error；空串为 info。
	Level string
	// JSON 为 true 时输出 JSON 行（serve 模式下便于采集）。
	JSON bool
	// Out 为空时写 stderr。
	Out io.Writer
}

func prefix(color bool) string {
	if !color {
		return "jianpian"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#E11D48")).
		Bold(true).
		Padding(0, 1).
		Render("jianpian")
}

// New 构造 logger；debug 级别下额外输出时间戳与调用位置。
func New(opts Options) *log.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || strings.TrimSpace(opts.Level) == "" {
		lvl = log.InfoLevel
	}
	debug := lvl <= log.DebugLevel

	lg := log.NewWithOptions(out, log.Options{
		Level:           lvl,
		ReportCaller:    debug,
		ReportTimestamp: debug || opts.JSON,
		TimeFormat:      "15:04:05",
		Prefix:          prefix(!opts.JSON && out == os.Stderr),
	})
	if opts.JSON {
		lg.SetFormatter(log.JSONFormatter)
	} else if out == os.Stderr {
		lg.SetColorProfile(termenv.EnvColorProfile())
	}
	return lg
}

// Install 构造 logger 并设为包级默认（parser 等纯函数包通过 log 包函数记录）。
func Install(opts Options) *log.Logger {
	lg := New(opts)
	log.SetDefault(lg)
	return lg
}
