// Package overlay 把监控状态转换为界面可直接显示的内容
//
// 子包负责具体输出：sound 播放提示音，banner 生成横幅图片，ws 推送到浏览器覆盖层。
package overlay

import (
	"fmt"
	"time"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/rotation"
)

// BannerHold NOW 横幅保留时长
const BannerHold = 3 * time.Second

// Level 横幅级别
type Level string

const (
	LevelNone      Level = ""
	LevelInfo      Level = "info"
	LevelCountdown Level = "countdown"
	LevelNow       Level = "now"
	LevelWaiting   Level = "waiting"
)

// View 覆盖层显示内容
type View struct {
	State      string `json:"state"`
	Status     string `json:"status"`
	Demo       bool   `json:"demo"`
	Elapsed    string `json:"elapsed"`
	Offset     string `json:"offset"`
	NextLabel  string `json:"next_label,omitempty"`
	NextIn     string `json:"next_in,omitempty"`
	Banner     string `json:"banner,omitempty"`
	Level      Level  `json:"level,omitempty"`
	WaitingFor string `json:"waiting_for,omitempty"`
}

// NewView 根据快照生成显示内容
func NewView(snap monitor.Snapshot) View {
	v := View{
		State:   snap.State.String(),
		Status:  string(snap.Status),
		Demo:    snap.Demo,
		Elapsed: rotation.FormatMMSS(snap.Elapsed),
		Offset:  rotation.FormatOffset(snap.Offset),
	}
	if snap.Next != nil {
		v.NextLabel = snap.Next.Label
		v.NextIn = rotation.FormatMMSS(snap.Next.Remaining)
	}
	v.Banner, v.Level = bannerText(snap)
	if snap.State == encounter.StateClearedWait {
		v.WaitingFor = snap.WaitingFor
	}
	return v
}

func bannerText(snap monitor.Snapshot) (string, Level) {
	if a := snap.LastAlert; a != nil && a.Kind == alert.KindNow &&
		a.SessionID == snap.SessionID && snap.At.Sub(a.FireAt) < BannerHold {
		return a.Text(), LevelNow
	}
	if snap.State == encounter.StateClearedWait {
		return fmt.Sprintf("%s 等待清除", snap.WaitingFor), LevelWaiting
	}
	if n := snap.Next; n != nil && n.Remaining > 0 && n.Remaining <= n.Lead {
		ev := alert.Event{Label: n.Label, Kind: alert.KindCountdown, FireAt: snap.At, DueAt: n.Predicted}
		return ev.Text(), LevelCountdown
	}
	if !snap.Running {
		return "", LevelNone
	}
	if snap.State == encounter.StateIdle {
		return "等待战斗开始", LevelInfo
	}
	return "", LevelNone
}
