package monitor

import (
	"errors"
	"time"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/encounter"
)

// ErrCommandQueueFull 命令队列已满
var ErrCommandQueueFull = errors.New("命令队列已满")

// Status 监控状态
type Status string

const (
	StatusStopped            Status = "stopped"
	StatusRunning            Status = "running"
	StatusCaptureUnavailable Status = "capture_unavailable"
	StatusCalibrationInvalid Status = "calibration_invalid"
	StatusClientAbsent       Status = "client_absent"
)

// CommandKind 命令类型
type CommandKind string

const (
	CmdStart        CommandKind = "start"
	CmdStop         CommandKind = "stop"
	CmdCleared      CommandKind = "cleared"
	CmdNudge        CommandKind = "nudge"
	CmdSetDemo      CommandKind = "set_demo"
	CmdResetSession CommandKind = "reset_session"
	CmdResetOffset  CommandKind = "reset_offset"
	CmdSetAlerts    CommandKind = "set_alerts"
)

// Command 来自界面的操作，在下一个周期开始时执行
type Command struct {
	Kind    CommandKind   `json:"kind"`
	Delta   time.Duration `json:"delta,omitempty"`
	Enabled bool          `json:"enabled,omitempty"`
	// Countdown、Now 用于 CmdSetAlerts
	Countdown bool `json:"countdown,omitempty"`
	Now       bool `json:"now,omitempty"`
	// At 收到命令的时间，清除确认以此为准
	At time.Time `json:"at"`
}

// UpdateKind 通知类型
type UpdateKind string

const (
	UpdateState       UpdateKind = "state"
	UpdateAlert       UpdateKind = "alert"
	UpdateCancel      UpdateKind = "cancel"
	UpdateSession     UpdateKind = "session"
	UpdateObservation UpdateKind = "observation"
)

// Update 发给只读订阅者的通知
type Update struct {
	Kind       UpdateKind            `json:"kind"`
	Snapshot   *Snapshot             `json:"snapshot,omitempty"`
	Alert      *alert.Event          `json:"alert,omitempty"`
	Transition *encounter.Transition `json:"transition,omitempty"`
}

// NextMechanic 下一个机制
type NextMechanic struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Predicted time.Time     `json:"predicted"`
	Remaining time.Duration `json:"remaining"`
	Lead      time.Duration `json:"lead"`
}

// Snapshot 某一时刻的监控状态
type Snapshot struct {
	At           time.Time       `json:"at"`
	Running      bool            `json:"running"`
	Demo         bool            `json:"demo"`
	Status       Status          `json:"status"`
	StatusDetail string          `json:"status_detail,omitempty"`
	State        encounter.State `json:"state"`
	SessionID    string          `json:"session_id,omitempty"`
	StartedAt    time.Time       `json:"started_at,omitempty"`
	Cycle        int             `json:"cycle"`
	Index        int             `json:"index"`
	Elapsed      time.Duration   `json:"elapsed"`
	Offset       time.Duration   `json:"offset"`
	Next         *NextMechanic   `json:"next,omitempty"`
	WaitingFor   string          `json:"waiting_for,omitempty"`
	WaitingSince time.Time       `json:"waiting_since,omitempty"`
	LastAlert    *alert.Event    `json:"last_alert,omitempty"`
	Ticks        uint64          `json:"ticks"`
	Overruns     uint64          `json:"overruns"`
	Countdown    bool            `json:"countdown_alerts"`
	NowAlerts    bool            `json:"now_alerts"`
	// Missed 本次会话中因迟到而丢弃的 NOW 提醒
	Missed int `json:"missed"`
}
