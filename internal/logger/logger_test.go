package logger

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) 应为 %s, 实际为 %s", in, want, got)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.SetLevel(WARN)

	l.Info("不应输出")
	l.Warn("应输出 %d", 1)

	out := buf.String()
	if strings.Contains(out, "不应输出") {
		t.Errorf("INFO 日志不应在 WARN 级别下输出: %q", out)
	}
	if !strings.Contains(out, "应输出 1") || !strings.Contains(out, "WARN") {
		t.Errorf("WARN 日志缺失: %q", out)
	}
}

func TestNamedSharesSink(t *testing.T) {
	var buf bytes.Buffer
	root := NewWithWriter(&buf)
	child := root.Named("monitor").Named("tick")

	child.Info("hello")
	root.SetLevel(ERROR)
	child.Info("hidden")

	out := buf.String()
	if !strings.Contains(out, "monitor.tick") {
		t.Errorf("子 logger 应带组件名: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("子 logger 应继承父级别")
	}
}

func TestRecentRing(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	for i := 0; i < recentCap+5; i++ {
		l.Info("line %d", i)
	}

	all := l.Recent(0)
	if len(all) != recentCap {
		t.Fatalf("Recent 应返回 %d 条, 实际 %d", recentCap, len(all))
	}
	if all[len(all)-1].Message != "line 204" {
		t.Errorf("最后一条应为 line 204, 实际 %q", all[len(all)-1].Message)
	}

	last := l.Recent(3)
	if len(last) != 3 || last[0].Message != "line 202" {
		t.Errorf("Recent(3) 结果不正确: %+v", last)
	}
}

func TestConfigureFile(t *testing.T) {
	l := New()
	path := filepath.Join(t.TempDir(), "susalert.log")
	if err := l.Configure("debug", path); err != nil {
		t.Fatalf("Configure 失败: %v", err)
	}
	defer l.Close()

	if l.GetLevel() != DEBUG {
		t.Errorf("级别应为 DEBUG")
	}
}
