package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.Contains(out, "SusAlert v"+Version) {
		t.Errorf("version 输出错误: %q, %v", out, err)
	}
}

func TestOffsetCommands(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "--config-dir", dir, "offset", "nudge", "1200ms")
	if err != nil || strings.TrimSpace(out) != "+1.2s" {
		t.Fatalf("nudge 输出 %q, %v", out, err)
	}
	out, err = execute(t, "--config-dir", dir, "offset", "show")
	if err != nil || strings.TrimSpace(out) != "+1.2s" {
		t.Errorf("偏移未保存: %q, %v", out, err)
	}
	out, err = execute(t, "--config-dir", dir, "offset", "nudge", "-1.5s")
	if err != nil || strings.TrimSpace(out) != "-0.3s" {
		t.Errorf("负数微调输出 %q, %v", out, err)
	}
	out, err = execute(t, "offset", "nudge", "-10s", "--config-dir", dir)
	if err != nil || strings.TrimSpace(out) != "-5.0s" {
		t.Errorf("偏移应限制在 ±5s: %q, %v", out, err)
	}
	out, err = execute(t, "--config-dir", dir, "offset", "reset")
	if err != nil || strings.TrimSpace(out) != "+0.0s" {
		t.Errorf("重置后输出 %q, %v", out, err)
	}

	if _, err := execute(t, "--config-dir", dir, "offset", "nudge", "abc"); err == nil {
		t.Error("无效时长应报错")
	}
	if _, err := execute(t, "--config-dir", dir, "offset", "nudge"); err == nil {
		t.Error("缺少时长应报错")
	}
}

func TestOffsetSaveFailure(t *testing.T) {
	dir := t.TempDir()
	// 临时文件路径被目录占用，保存必然失败
	if err := os.Mkdir(filepath.Join(dir, "config.json.tmp"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config-dir", dir, "offset", "nudge", "100ms"); err == nil {
		t.Error("保存失败时 nudge 应报错")
	}
	if _, err := execute(t, "--config-dir", dir, "offset", "reset"); err == nil {
		t.Error("保存失败时 reset 应报错")
	}
}

func TestParseDeltaArgs(t *testing.T) {
	root := newRootCmd()
	cmd, _, err := root.Find([]string{"ctl", "nudge"})
	if err != nil {
		t.Fatal(err)
	}

	d, err := parseDeltaArgs(cmd, []string{"--addr", "10s", "-1.5s"})
	if err != nil || d != -1500*time.Millisecond {
		t.Fatalf("解析结果 %s, %v", d, err)
	}
	if got := cmd.InheritedFlags().Lookup("addr").Value.String(); got != "10s" {
		t.Errorf("--addr = %q", got)
	}

	for _, args := range [][]string{nil, {"1s", "2s"}, {"--addr"}} {
		if _, err := parseDeltaArgs(cmd, args); err == nil {
			t.Errorf("%v 应报错", args)
		}
	}
}

func TestRotationCommands(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "--config-dir", dir, "rotation", "show")
	if err != nil || !strings.Contains(out, "MID!") || !strings.Contains(out, "02:25") {
		t.Errorf("rotation show 输出错误: %q, %v", out, err)
	}

	out, err = execute(t, "rotation", "export", "--format", "yaml")
	if err != nil || !strings.Contains(out, "slimes") {
		t.Errorf("rotation export 输出错误: %q, %v", out, err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	if _, err := execute(t, "--config-dir", t.TempDir(), "history"); err == nil {
		t.Error("未启用历史记录时应报错")
	}
}
