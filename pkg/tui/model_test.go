package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/monitor"
)

type fakeController struct {
	calls []string
	nudge time.Duration
	demo  bool
	snap  monitor.Snapshot
}

func (f *fakeController) Start() error { f.calls = append(f.calls, "start"); return nil }
func (f *fakeController) Stop() error  { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeController) Clear() error {
	f.calls = append(f.calls, "clear")
	return monitor.ErrCommandQueueFull
}
func (f *fakeController) Nudge(d time.Duration) error {
	f.calls = append(f.calls, "nudge")
	f.nudge += d
	return nil
}
func (f *fakeController) SetDemo(enabled bool) error {
	f.calls = append(f.calls, "demo")
	f.demo = enabled
	return nil
}
func (f *fakeController) ResetSession() error        { f.calls = append(f.calls, "reset"); return nil }
func (f *fakeController) Snapshot() monitor.Snapshot { return f.snap }

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeys(t *testing.T) {
	ctl := &fakeController{}
	var m tea.Model = NewModel(ctl, nil)

	for _, k := range []string{"+", "+", "-", "s", "d", "r"} {
		m, _ = m.Update(key(k))
	}
	if ctl.nudge != NudgeStep {
		t.Errorf("偏移合计 = %v, 期望 %v", ctl.nudge, NudgeStep)
	}
	if !ctl.demo {
		t.Error("d 应开启演示模式")
	}
	want := "nudge,nudge,nudge,start,demo,reset"
	if got := strings.Join(ctl.calls, ","); got != want {
		t.Errorf("调用 = %s, 期望 %s", got, want)
	}

	m, _ = m.Update(key("c"))
	if !strings.Contains(m.View(), monitor.ErrCommandQueueFull.Error()) {
		t.Error("命令失败时应显示错误")
	}

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q 应返回退出命令")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q 应退出")
	}
}

func TestStopWhenRunning(t *testing.T) {
	ctl := &fakeController{snap: monitor.Snapshot{Running: true}}
	m := NewModel(ctl, nil)
	m.Update(key("s"))
	if len(ctl.calls) != 1 || ctl.calls[0] != "stop" {
		t.Errorf("运行中按 s 应停止, 调用 = %v", ctl.calls)
	}
}

func TestUpdatesRendered(t *testing.T) {
	now := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	ctl := &fakeController{}
	ch := make(chan monitor.Update, 4)
	var m tea.Model = NewModel(ctl, ch)

	snap := monitor.Snapshot{
		At: now, Running: true, Demo: true, Status: monitor.StatusRunning,
		State: encounter.StateActive, Elapsed: 75 * time.Second,
		Next: &monitor.NextMechanic{Label: "Slimes", Predicted: now.Add(2 * time.Second), Remaining: 2 * time.Second, Lead: 3 * time.Second},
	}
	m, cmd := m.Update(updateMsg(monitor.Update{Kind: monitor.UpdateState, Snapshot: &snap}))
	if cmd == nil {
		t.Error("处理更新后应继续等待下一条")
	}
	m, _ = m.Update(updateMsg(monitor.Update{Kind: monitor.UpdateAlert, Alert: &alert.Event{Label: "Stun", Kind: alert.KindNow, FireAt: now}}))

	out := m.View()
	for _, want := range []string{"DEMO", "ACTIVE", "01:15", "Slimes", "Slimes in 2…", "Stun NOW!"} {
		if !strings.Contains(out, want) {
			t.Errorf("界面缺少 %q:\n%s", want, out)
		}
	}
}

func TestLogBounded(t *testing.T) {
	m := NewModel(&fakeController{}, nil)
	for i := 0; i < maxLog+5; i++ {
		m.apply(monitor.Update{Kind: monitor.UpdateAlert, Alert: &alert.Event{Label: "x", Kind: alert.KindNow}})
	}
	if len(m.log) != maxLog {
		t.Errorf("日志条数 = %d, 期望 %d", len(m.log), maxLog)
	}
}

func TestChannelClosedQuits(t *testing.T) {
	ch := make(chan monitor.Update)
	close(ch)
	m := NewModel(&fakeController{}, ch)
	msg := waitForUpdate(ch)()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("通道关闭应退出")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("通道关闭应退出")
	}
}
