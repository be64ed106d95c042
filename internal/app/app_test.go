package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/susalert/susalert/pkg/capture"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/history"
	"github.com/susalert/susalert/pkg/overlay/sound"
	"github.com/susalert/susalert/pkg/rotation"
	"github.com/susalert/susalert/pkg/vision"
)

type silentPlayer struct{}

func (silentPlayer) Play(sound.Cue) error { return nil }

func TestTemplateSpecs(t *testing.T) {
	dir := t.TempDir()
	mgr := config.NewManagerWithDir(dir)
	tplDir := filepath.Join(dir, "templates")
	os.MkdirAll(tplDir, 0o755)
	for _, name := range []string{"timer.png", "stun.png", "notes.txt"} {
		os.WriteFile(filepath.Join(tplDir, name), []byte("x"), 0o644)
	}

	s := config.DefaultSettings()
	s.TemplateDir = "templates"
	s.Templates = []config.TemplateSetting{{ID: "timer", Path: "custom/timer.png", Threshold: 0.9}}

	specs := TemplateSpecs(mgr, s)
	if len(specs) != 2 {
		t.Fatalf("模板数量 = %d, 期望 2: %+v", len(specs), specs)
	}
	if specs[0].ID != "timer" || specs[0].Path != filepath.Join(dir, "custom/timer.png") || specs[0].Threshold != 0.9 {
		t.Errorf("配置模板错误: %+v", specs[0])
	}
	if specs[1].ID != "stun" || specs[1].Path != filepath.Join(tplDir, "stun.png") {
		t.Errorf("目录模板错误: %+v", specs[1])
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	mgr := config.NewManagerWithDir(dir)
	s := config.DefaultSettings()
	s.LeadMs = 5000

	tbl, err := LoadTable(mgr, s)
	if err != nil {
		t.Fatal(err)
	}
	def := rotation.Default()
	if tbl.DefaultLead != 5*time.Second || tbl.Len() != def.Len() {
		t.Errorf("内置表错误: lead=%v len=%d", tbl.DefaultLead, tbl.Len())
	}

	s.RotationFile = "missing.toml"
	if _, err := LoadTable(mgr, s); err == nil {
		t.Error("轮换表不存在应返回错误")
	}
}

func TestNewDemoWithoutTemplates(t *testing.T) {
	mgr := config.NewManagerWithDir(t.TempDir())
	a, err := New(mgr, Options{Demo: true, Quiet: true, Player: silentPlayer{}})
	if err != nil {
		t.Fatalf("组装失败: %v", err)
	}
	defer a.Close()

	if !a.Monitor.Snapshot().Demo {
		t.Error("应处于演示模式")
	}
	if a.checkCalibration() == nil {
		t.Error("未标定时校验应失败")
	}
}

func TestNewFailsOnMissingTemplate(t *testing.T) {
	mgr := config.NewManagerWithDir(t.TempDir())
	s := config.DefaultSettings()
	s.Templates = []config.TemplateSetting{{ID: "timer", Path: "missing.png"}}
	s.TimerRegion = &capture.Region{X: 0, Y: 0, W: 120, H: 40}
	if err := mgr.Save(s); err != nil {
		t.Fatal(err)
	}

	a, err := New(mgr, Options{Quiet: true, Player: silentPlayer{}})
	if !errors.Is(err, vision.ErrTemplateMissing) {
		t.Fatalf("模板缺失应返回 ErrTemplateMissing, 实际 %v", err)
	}
	if a != nil {
		t.Error("失败时不应返回实例")
	}

	// 演示模式下只警告
	a, err = New(mgr, Options{Demo: true, Quiet: true, Player: silentPlayer{}})
	if err != nil {
		t.Fatalf("演示模式不应因模板缺失失败: %v", err)
	}
	a.Close()
}

func TestNewWithoutTemplatesIsNotFatal(t *testing.T) {
	mgr := config.NewManagerWithDir(t.TempDir())
	a, err := New(mgr, Options{Quiet: true, Player: silentPlayer{}})
	if err != nil {
		t.Fatalf("未配置模板时应允许启动: %v", err)
	}
	defer a.Close()
	if a.checkCalibration() == nil {
		t.Error("未配置模板时校验应失败")
	}
}

func TestRunDemoRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	mgr := config.NewManagerWithDir(dir)
	s := config.DefaultSettings()
	s.Demo = true
	s.ControlAddr = "127.0.0.1:0"
	s.HistoryPath = "history.db"
	s.EventSound = false
	if err := mgr.Save(s); err != nil {
		t.Fatal(err)
	}

	a, err := New(mgr, Options{Quiet: true, Player: silentPlayer{}})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = a.Run(ctx, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
		case <-time.After(1500 * time.Millisecond):
		}
		return nil
	})
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	a.Close()

	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	sessions, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || !sessions[0].Demo {
		t.Errorf("应记录一个演示会话: %+v", sessions)
	}
}

func TestSetAlertModesPersists(t *testing.T) {
	mgr := config.NewManagerWithDir(t.TempDir())
	if err := mgr.SaveOffset(400 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	a, err := New(mgr, Options{Demo: true, Quiet: true, Player: silentPlayer{}})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if m := a.AlertModes(); !m.Countdown || !m.Now || !m.Sound {
		t.Errorf("默认应全部开启: %+v", m)
	}
	want := AlertModes{Countdown: false, Now: true, Sound: false}
	if err := a.SetAlertModes(want); err != nil {
		t.Fatalf("切换提醒失败: %v", err)
	}
	if got := a.AlertModes(); got != want {
		t.Errorf("当前开关 = %+v, 期望 %+v", got, want)
	}

	loaded, err := mgr.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.CountdownAlerts || !loaded.NowAlerts || loaded.EventSound {
		t.Errorf("配置未保存: %+v", loaded)
	}
	if loaded.TimeOffset() != 400*time.Millisecond {
		t.Errorf("偏移不应改变: %s", loaded.TimeOffset())
	}
}
