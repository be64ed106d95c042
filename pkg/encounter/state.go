// Package encounter 跟踪一场首领战的机制轮换
//
// Machine 持有唯一的会话，按检测结果和经过的时间在 IDLE / ACTIVE / CLEARED_WAIT
// 三个状态间转换。所有方法只应由监控循环的单个 goroutine 调用。
package encounter

import (
	"fmt"
	"time"

	"github.com/susalert/susalert/pkg/rotation"
)

// State 状态
type State int

const (
	// StateIdle 无会话，等待战斗开始标记
	StateIdle State = iota
	// StateActive 会话进行中
	StateActive
	// StateClearedWait 等待手动确认清除
	StateClearedWait
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateActive:
		return "ACTIVE"
	case StateClearedWait:
		return "CLEARED_WAIT"
	default:
		return "UNKNOWN"
	}
}

// MarshalText 实现 encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "IDLE":
		*s = StateIdle
	case "ACTIVE":
		*s = StateActive
	case "CLEARED_WAIT":
		*s = StateClearedWait
	default:
		return fmt.Errorf("未知状态: %s", text)
	}
	return nil
}

// transitions 合法的状态转换
var transitions = map[State][]State{
	StateIdle:        {StateActive},
	StateActive:      {StateActive, StateClearedWait, StateIdle},
	StateClearedWait: {StateActive, StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EndReason 会话结束原因
type EndReason string

const (
	EndDetected         EndReason = "end_detected"
	EndStopped          EndReason = "stopped"
	EndManualReset      EndReason = "manual_reset"
	EndSessionTimeout   EndReason = "session_timeout"
	EndMarkerLost       EndReason = "marker_lost"
	EndRotationComplete EndReason = "rotation_complete"
)

// TransitionKind 转换事件类型
type TransitionKind string

const (
	TransitionStarted   TransitionKind = "started"
	TransitionDue       TransitionKind = "due"
	TransitionConfirmed TransitionKind = "confirmed"
	TransitionWaiting   TransitionKind = "waiting"
	TransitionCleared   TransitionKind = "cleared"
	TransitionEnded     TransitionKind = "ended"
	TransitionAmbiguous TransitionKind = "ambiguous"
)

// Anchor 时间参考点：At 时刻对应名义时间 Nominal，当时的偏移为 OffsetBase
type Anchor struct {
	At         time.Time     `json:"at"`
	Nominal    time.Duration `json:"nominal"`
	OffsetBase time.Duration `json:"offset_base"`
}

// OccurrenceKey 一次机制出现的唯一标识
type OccurrenceKey struct {
	SessionID string `json:"session_id"`
	Cycle     int    `json:"cycle"`
	Index     int    `json:"index"`
}

// Occurrence 某一轮中的一次机制出现
type Occurrence struct {
	OccurrenceKey
	Entry rotation.Entry `json:"entry"`
	// Predicted 预测时间
	Predicted time.Time `json:"predicted"`
	// DueAt 实际到期时间：计时到期时等于 Predicted，模板确认时为观测时间
	DueAt     time.Time     `json:"due_at"`
	Lead      time.Duration `json:"lead"`
	Confirmed bool          `json:"confirmed"`
}

// Transition 一次状态变化或值得通知的事件
type Transition struct {
	Kind      TransitionKind `json:"kind"`
	From      State          `json:"from"`
	To        State          `json:"to"`
	SessionID string         `json:"session_id"`
	At        time.Time      `json:"at"`

	Occurrence *Occurrence `json:"occurrence,omitempty"`
	Reason     EndReason   `json:"reason,omitempty"`

	// 确认事件的预测/观测差值
	Delta time.Duration `json:"delta,omitempty"`
	// 等待清除的时长
	Waited time.Duration `json:"waited,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// OffsetCorrector 偏移校正接口
type OffsetCorrector interface {
	Offset() time.Duration
	RecordObservation(mechanicID string, predicted, observed time.Time) time.Duration
}
