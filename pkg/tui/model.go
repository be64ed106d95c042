// Package tui 终端仪表盘：显示当前状态、下一个机制和提醒，并提供键盘操作
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/overlay"
)

// NudgeStep 每次按键调整的偏移
const NudgeStep = 100 * time.Millisecond

// maxLog 保留的提醒条数
const maxLog = 8

// Controller 仪表盘需要的监控操作
type Controller interface {
	Start() error
	Stop() error
	Clear() error
	Nudge(delta time.Duration) error
	SetDemo(enabled bool) error
	ResetSession() error
	Snapshot() monitor.Snapshot
}

type updateMsg monitor.Update

type closedMsg struct{}

type tickMsg time.Time

// Model bubbletea 模型
type Model struct {
	ctl     Controller
	updates <-chan monitor.Update

	snap   monitor.Snapshot
	view   overlay.View
	log    []string
	errMsg string
	width  int
}

// NewModel 创建模型，updates 通常来自 Monitor.Subscribe
func NewModel(ctl Controller, updates <-chan monitor.Update) Model {
	m := Model{ctl: ctl, updates: updates}
	m.setSnapshot(ctl.Snapshot())
	return m
}

// Run 运行仪表盘直到用户退出
func Run(ctl Controller, updates <-chan monitor.Update) error {
	_, err := tea.NewProgram(NewModel(ctl, updates), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tick())
}

func waitForUpdate(ch <-chan monitor.Update) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) setSnapshot(s monitor.Snapshot) {
	m.snap = s
	m.view = overlay.NewView(s)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case updateMsg:
		m.apply(monitor.Update(msg))
		return m, waitForUpdate(m.updates)

	case closedMsg:
		return m, tea.Quit

	case tickMsg:
		// 没有推送时也定期刷新
		m.setSnapshot(m.ctl.Snapshot())
		return m, tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var err error
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "c", " ":
		err = m.ctl.Clear()
	case "+", "=":
		err = m.ctl.Nudge(NudgeStep)
	case "-", "_":
		err = m.ctl.Nudge(-NudgeStep)
	case "s":
		if m.snap.Running {
			err = m.ctl.Stop()
		} else {
			err = m.ctl.Start()
		}
	case "d":
		err = m.ctl.SetDemo(!m.snap.Demo)
	case "r":
		err = m.ctl.ResetSession()
	default:
		return m, nil
	}
	m.errMsg = ""
	if err != nil {
		m.errMsg = err.Error()
	}
	return m, nil
}

func (m *Model) apply(u monitor.Update) {
	switch u.Kind {
	case monitor.UpdateState:
		if u.Snapshot != nil {
			m.setSnapshot(*u.Snapshot)
		}
	case monitor.UpdateAlert:
		if u.Alert != nil {
			m.push(fmt.Sprintf("%s  %s", u.Alert.FireAt.Local().Format("15:04:05"), u.Alert.Text()))
		}
	case monitor.UpdateSession:
		if tr := u.Transition; tr != nil {
			line := fmt.Sprintf("%s  [%s]", tr.At.Local().Format("15:04:05"), tr.Kind)
			if tr.Reason != "" {
				line += " " + string(tr.Reason)
			}
			m.push(line)
		}
	}
}

func (m *Model) push(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLog {
		m.log = m.log[len(m.log)-maxLog:]
	}
}

func (m Model) View() string {
	v := m.view

	var b strings.Builder
	title := titleStyle.Render("SusAlert")
	if v.Demo {
		title += " " + demoStyle.Render("DEMO")
	}
	b.WriteString(title + "\n\n")

	row := func(label, value string, style lipgloss.Style) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-8s", label)) + style.Render(value) + "\n")
	}
	row("状态", v.Status, statusStyle(v.Status))
	row("阶段", v.State, valueStyle)
	row("时间", v.Elapsed, valueStyle)
	row("偏移", v.Offset, valueStyle)
	if v.NextLabel != "" {
		row("下一个", fmt.Sprintf("%s  %s", v.NextLabel, v.NextIn), warnStyle)
	}
	if m.snap.StatusDetail != "" {
		row("详情", m.snap.StatusDetail, critStyle)
	}

	if v.Banner != "" {
		b.WriteString("\n" + levelStyle(v.Level).Render(v.Banner) + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(labelStyle.Render(line) + "\n")
		}
	}

	if m.errMsg != "" {
		b.WriteString("\n" + critStyle.Render(m.errMsg) + "\n")
	}

	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	help := helpStyle.Render("c 清除 · +/- 偏移 · s 开始/停止 · d 演示 · r 重置 · q 退出")
	return panel.Render(b.String()) + "\n" + help + "\n"
}
