// Package alert 根据机制到期时间生成倒计时和到达提醒
//
// 每次出现（会话、轮次、序号）最多触发一次 COUNTDOWN 和一次 NOW，
// 重复调用 Evaluate 不会产生重复提醒。
package alert

import (
	"fmt"
	"time"

	"github.com/susalert/susalert/pkg/encounter"
)

// Kind 提醒类型
type Kind string

const (
	KindCountdown Kind = "COUNTDOWN"
	KindNow       Kind = "NOW"
)

// DefaultLateLimit NOW 提醒最多允许迟到的时长，超过视为错过
const DefaultLateLimit = 2 * time.Second

// Event 一条提醒
type Event struct {
	SessionID  string    `json:"session_id"`
	MechanicID string    `json:"mechanic_id"`
	Label      string    `json:"label"`
	Kind       Kind      `json:"kind"`
	FireAt     time.Time `json:"fire_at"`
	DueAt      time.Time `json:"due_at"`
	Cycle      int       `json:"cycle"`
	Index      int       `json:"index"`
}

// Remaining 距离到期的剩余时间
func (e Event) Remaining() time.Duration {
	return e.DueAt.Sub(e.FireAt)
}

// Text 提醒文本，如 "Slimes in 3…" / "Slimes NOW!"
func (e Event) Text() string {
	if e.Kind == KindNow {
		return fmt.Sprintf("%s NOW!", e.Label)
	}
	secs := int((e.Remaining() + time.Second - 1) / time.Second)
	return fmt.Sprintf("%s in %d…", e.Label, secs)
}

// Options 调度参数
type Options struct {
	Countdown bool
	Now       bool
	LateLimit time.Duration
}

// Option 选项函数
type Option func(*Options)

// WithCountdown 启用/禁用倒计时提醒
func WithCountdown(enabled bool) Option {
	return func(o *Options) {
		o.Countdown = enabled
	}
}

// WithNow 启用/禁用到达提醒
func WithNow(enabled bool) Option {
	return func(o *Options) {
		o.Now = enabled
	}
}

// WithLateLimit 设置迟到上限，0 表示不限制
func WithLateLimit(d time.Duration) Option {
	return func(o *Options) {
		o.LateLimit = d
	}
}

type firedKey struct {
	encounter.OccurrenceKey
	kind Kind
}

// Scheduler 提醒调度器，只由监控循环调用
type Scheduler struct {
	opts   Options
	fired  map[firedKey]struct{}
	missed int
}

// NewScheduler 创建调度器
func NewScheduler(opts ...Option) *Scheduler {
	o := Options{Countdown: true, Now: true, LateLimit: DefaultLateLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{opts: o, fired: make(map[firedKey]struct{})}
}

// SetEnabled 修改提醒开关
func (s *Scheduler) SetEnabled(countdown, now bool) {
	s.opts.Countdown = countdown
	s.opts.Now = now
}

// Enabled 返回倒计时和 NOW 提醒开关
func (s *Scheduler) Enabled() (countdown, now bool) {
	return s.opts.Countdown, s.opts.Now
}

// Evaluate 检查各次出现，返回本次应触发的提醒
func (s *Scheduler) Evaluate(now time.Time, occurrences ...encounter.Occurrence) []Event {
	var events []Event
	for _, occ := range occurrences {
		remaining := occ.DueAt.Sub(now)

		switch {
		case remaining <= 0:
			if !s.mark(occ.OccurrenceKey, KindNow) {
				continue
			}
			// 倒计时窗口已过，不再补发
			s.mark(occ.OccurrenceKey, KindCountdown)
			if s.opts.LateLimit > 0 && -remaining > s.opts.LateLimit {
				s.missed++
				continue
			}
			if s.opts.Now {
				events = append(events, newEvent(occ, KindNow, now))
			}
		case remaining <= occ.Lead:
			if !s.mark(occ.OccurrenceKey, KindCountdown) {
				continue
			}
			if s.opts.Countdown {
				events = append(events, newEvent(occ, KindCountdown, now))
			}
		}
	}
	return events
}

// Missed 上次 Reset 以来因迟到而丢弃的 NOW 提醒数量
func (s *Scheduler) Missed() int {
	return s.missed
}

// Reset 清空已触发记录，会话变化或停止时调用
func (s *Scheduler) Reset() {
	s.fired = make(map[firedKey]struct{})
	s.missed = 0
}

// mark 标记已触发，首次标记返回 true
func (s *Scheduler) mark(key encounter.OccurrenceKey, kind Kind) bool {
	k := firedKey{OccurrenceKey: key, kind: kind}
	if _, ok := s.fired[k]; ok {
		return false
	}
	s.fired[k] = struct{}{}
	return true
}

func newEvent(occ encounter.Occurrence, kind Kind, now time.Time) Event {
	label := occ.Entry.Label
	if label == "" {
		label = occ.Entry.ID
	}
	return Event{
		SessionID:  occ.SessionID,
		MechanicID: occ.Entry.ID,
		Label:      label,
		Kind:       kind,
		FireAt:     now,
		DueAt:      occ.DueAt,
		Cycle:      occ.Cycle,
		Index:      occ.Index,
	}
}
