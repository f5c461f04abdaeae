package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Options{Level: "warn", Out: &buf})
	lg.Info("不应输出")
	lg.Warn("应输出", "k", "v")

	s := buf.String()
	if strings.Contains(s, "不应输出") {
		t.Fatalf("info 日志不应在 warn 级别输出：%q", s)
	}
	if !strings.Contains(s, "应输出") || !strings.Contains(s, "k=v") {
		t.Fatalf("期望 warn 日志与键值对，实际 %q", s)
	}
}

func TestNew_JSONAndDefaultLevel(t *testing.T) {
	var buf bytes.Buffer
	lg := New(Options{Level: "bogus", JSON: true, Out: &buf})
	lg.Debug("debug 不输出")
	lg.Info("hello", "movie", "1")

	s := buf.String()
	if strings.Contains(s, "debug 不输出") {
		t.Fatalf("非法级别应回退 info：%q", s)
	}
	if !strings.Contains(s, `"msg":"hello"`) || !strings.Contains(s, `"movie":"1"`) {
		t.Fatalf("期望 JSON 输出，实际 %q", s)
	}
}
