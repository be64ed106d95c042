package encounter

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/rotation"
	"github.com/susalert/susalert/pkg/vision"
)

const (
	// DefaultConfirmWindow 模板确认与预测时间的最大间隔
	DefaultConfirmWindow = 1500 * time.Millisecond
	// DefaultPresenceTimeout 战斗计时器消失多久视为战斗结束
	DefaultPresenceTimeout = 4 * time.Second
	// DefaultMaxSessionDuration 会话最长持续时间
	DefaultMaxSessionDuration = 30 * time.Minute
)

// Config 状态机参数
type Config struct {
	// StartTemplate 战斗开始标记（通常是首领计时器）
	StartTemplate string
	// EndTemplate 战斗结束标记，可为空
	EndTemplate string
	// ConfirmWindow 机制模板匹配被视为确认的时间窗口
	ConfirmWindow time.Duration
	// PresenceTimeout 开始标记连续缺失该时长后结束会话，0 表示不检查
	PresenceTimeout time.Duration
	// MaxSessionDuration 会话超时，0 表示不限制
	MaxSessionDuration time.Duration
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{
		StartTemplate:      "timer",
		ConfirmWindow:      DefaultConfirmWindow,
		PresenceTimeout:    DefaultPresenceTimeout,
		MaxSessionDuration: DefaultMaxSessionDuration,
	}
}

// Session 一场战斗
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	State     State     `json:"state"`
	// Index/Cycle 下一个机制的位置
	Index  int    `json:"index"`
	Cycle  int    `json:"cycle"`
	Anchor Anchor `json:"anchor"`
	// WaitingSince 进入 CLEARED_WAIT 时对应机制的到期时间
	WaitingSince time.Time `json:"waiting_since,omitempty"`
	// LastSeen 最近一次看到开始标记的时间
	LastSeen time.Time `json:"last_seen"`
	// Last 最近一个已到期的机制
	Last *Occurrence `json:"last,omitempty"`

	exhausted bool
}

// Option 状态机选项
type Option func(*Machine)

// WithIDGenerator 替换会话 ID 生成器
func WithIDGenerator(fn func() string) Option {
	return func(m *Machine) {
		m.newID = fn
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// Machine 轮换状态机
type Machine struct {
	table   rotation.Table
	cfg     Config
	session *Session
	newID   func() string
	log     *logger.Logger
}

// NewMachine 创建状态机，轮换表不合法时返回错误
func NewMachine(table rotation.Table, cfg Config, opts ...Option) (*Machine, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConfirmWindow < 0 {
		return nil, fmt.Errorf("确认窗口不能为负: %s", cfg.ConfirmWindow)
	}

	m := &Machine{
		table: table,
		cfg:   cfg,
		newID: uuid.NewString,
		log:   logger.Named("encounter"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Table 返回轮换表
func (m *Machine) Table() rotation.Table {
	return m.table
}

// Config 返回参数
func (m *Machine) Config() Config {
	return m.cfg
}

// State 当前状态
func (m *Machine) State() State {
	if m.session == nil {
		return StateIdle
	}
	return m.session.State
}

// Session 返回当前会话的副本，无会话时返回 nil
func (m *Machine) Session() *Session {
	if m.session == nil {
		return nil
	}
	s := *m.session
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return &s
}

// Predicted 第 cycle 轮第 index 个机制的预测时间
func (m *Machine) Predicted(index, cycle int, offset time.Duration) time.Time {
	a := m.session.Anchor
	return a.At.Add(m.table.Nominal(index, cycle) - a.Nominal + (offset - a.OffsetBase))
}

// Elapsed 校正后的战斗经过时间（名义时间轴），等待清除期间冻结
func (m *Machine) Elapsed(now time.Time, offset time.Duration) time.Duration {
	s := m.session
	if s == nil {
		return 0
	}
	t := now
	if s.State == StateClearedWait {
		t = s.WaitingSince
	}
	return s.Anchor.Nominal + t.Sub(s.Anchor.At) - (offset - s.Anchor.OffsetBase)
}

// Upcoming 返回下一个机制；无会话、等待清除或轮换已结束时返回 false
func (m *Machine) Upcoming(offset time.Duration) (Occurrence, bool) {
	s := m.session
	if s == nil || s.State != StateActive || s.exhausted {
		return Occurrence{}, false
	}
	return m.occurrence(s.Index, s.Cycle, offset), true
}

func (m *Machine) occurrence(index, cycle int, offset time.Duration) Occurrence {
	pred := m.Predicted(index, cycle, offset)
	return Occurrence{
		OccurrenceKey: OccurrenceKey{SessionID: m.session.ID, Cycle: cycle, Index: index},
		Entry:         m.table.Entry(index),
		Predicted:     pred,
		DueAt:         pred,
		Lead:          m.table.LeadFor(index),
	}
}

// Step 处理一个周期的检测结果
// res.At 为截取时间，作为检测/观测时间；now 用于计时判断
func (m *Machine) Step(now time.Time, res vision.MatchResult, corr OffsetCorrector) []Transition {
	at := res.At
	if at.IsZero() {
		at = now
	}

	var out []Transition
	if m.session == nil {
		startSeen := res.Matched(m.cfg.StartTemplate)
		endSeen := res.Matched(m.cfg.EndTemplate)
		if startSeen && endSeen {
			m.log.Warn("同一帧同时匹配开始和结束标记, 保持 IDLE")
			return append(out, Transition{
				Kind: TransitionAmbiguous, From: StateIdle, To: StateIdle, At: at,
				Detail: "开始与结束标记同时出现",
			})
		}
		if !startSeen {
			return nil
		}
		out = append(out, m.begin(at))
	}

	s := m.session
	if !res.Skipped && res.Matched(m.cfg.StartTemplate) {
		s.LastSeen = at
	}

	if res.Matched(m.cfg.EndTemplate) {
		if ids := m.confirmingTemplates(res); len(ids) > 0 {
			m.log.Warn("结束标记与机制模板 %v 同时匹配, 以结束为准", ids)
			out = append(out, Transition{
				Kind: TransitionAmbiguous, From: s.State, To: StateIdle, SessionID: s.ID, At: at,
				Detail: fmt.Sprintf("结束标记优先于 %v", ids),
			})
		}
		return append(out, m.end(at, EndDetected))
	}
	if m.cfg.MaxSessionDuration > 0 && now.Sub(s.StartedAt) >= m.cfg.MaxSessionDuration {
		m.log.Warn("会话 %s 超过最长时长 %s 仍未检测到结束, 强制结束", s.ID, m.cfg.MaxSessionDuration)
		return append(out, m.end(now, EndSessionTimeout))
	}
	if m.cfg.PresenceTimeout > 0 && m.cfg.StartTemplate != "" && !res.Skipped &&
		now.Sub(s.LastSeen) >= m.cfg.PresenceTimeout {
		m.log.Info("战斗计时器已消失 %s, 结束会话", now.Sub(s.LastSeen).Round(time.Millisecond))
		return append(out, m.end(now, EndMarkerLost))
	}

	out = append(out, m.confirm(at, res, corr)...)
	if m.session == nil || s.State == StateClearedWait {
		return out
	}
	return append(out, m.advanceByTimer(now, corr.Offset())...)
}

// Clear 手动确认清除，从清除时刻重新计时
func (m *Machine) Clear(now time.Time, offset time.Duration) []Transition {
	s := m.session
	if s == nil || s.State != StateClearedWait || s.Last == nil {
		m.log.Debug("当前不在等待清除状态, 忽略清除确认")
		return nil
	}

	waited := now.Sub(s.WaitingSince)
	last := *s.Last
	s.Anchor = Anchor{
		At:         now,
		Nominal:    m.table.Nominal(last.Index, last.Cycle),
		OffsetBase: offset,
	}
	s.WaitingSince = time.Time{}
	m.setState(StateActive)

	m.log.Info("%s 已清除, 等待 %s", last.Entry.Label, waited.Round(time.Millisecond))
	out := []Transition{{
		Kind: TransitionCleared, From: StateClearedWait, To: StateActive, SessionID: s.ID, At: now,
		Occurrence: &last, Waited: waited,
	}}
	if s.exhausted {
		out = append(out, m.end(now, EndRotationComplete))
	}
	return out
}

// Reset 结束当前会话
func (m *Machine) Reset(now time.Time, reason EndReason) []Transition {
	if m.session == nil {
		return nil
	}
	return []Transition{m.end(now, reason)}
}

func (m *Machine) begin(at time.Time) Transition {
	m.session = &Session{
		ID:        m.newID(),
		StartedAt: at,
		State:     StateActive,
		Anchor:    Anchor{At: at},
		LastSeen:  at,
	}
	m.log.Info("检测到战斗开始, 会话 %s", m.session.ID)
	return Transition{Kind: TransitionStarted, From: StateIdle, To: StateActive, SessionID: m.session.ID, At: at}
}

func (m *Machine) end(at time.Time, reason EndReason) Transition {
	s := m.session
	from := s.State
	m.setState(StateIdle)
	m.session = nil
	m.log.Info("会话 %s 结束: %s", s.ID, reason)
	return Transition{Kind: TransitionEnded, From: from, To: StateIdle, SessionID: s.ID, At: at, Reason: reason}
}

func (m *Machine) setState(to State) {
	if m.session == nil {
		return
	}
	if !canTransition(m.session.State, to) {
		// 状态表之外的转换说明调用顺序有误
		panic(fmt.Sprintf("非法状态转换 %s -> %s", m.session.State, to))
	}
	m.session.State = to
}

// confirmingTemplates 返回本帧中能确认上一个或下一个机制的模板
func (m *Machine) confirmingTemplates(res vision.MatchResult) []string {
	s := m.session
	var ids []string
	if s.Last != nil && !s.Last.Confirmed && res.Matched(s.Last.Entry.Template) {
		ids = append(ids, s.Last.Entry.Template)
	}
	if !s.exhausted {
		if e := m.table.Entry(s.Index); res.Matched(e.Template) && (len(ids) == 0 || ids[0] != e.Template) {
			ids = append(ids, e.Template)
		}
	}
	return ids
}

// confirm 处理机制模板匹配
// 已到期但未确认的上一个机制，或即将到期的下一个机制，在确认窗口内匹配时以观测时间为准
func (m *Machine) confirm(at time.Time, res vision.MatchResult, corr OffsetCorrector) []Transition {
	s := m.session
	offset := corr.Offset()
	window := m.cfg.ConfirmWindow

	type candidate struct {
		occ  Occurrence
		late bool
		gap  time.Duration
	}
	var cands []candidate

	if s.Last != nil && !s.Last.Confirmed && res.Matched(s.Last.Entry.Template) {
		if gap := absDuration(at.Sub(s.Last.Predicted)); gap <= window {
			cands = append(cands, candidate{occ: *s.Last, late: true, gap: gap})
		}
	}
	if s.State == StateActive && !s.exhausted {
		up := m.occurrence(s.Index, s.Cycle, offset)
		if res.Matched(up.Entry.Template) {
			if gap := absDuration(at.Sub(up.Predicted)); gap <= window {
				cands = append(cands, candidate{occ: up, gap: gap})
			}
		}
	}
	if len(cands) == 0 {
		return nil
	}

	var out []Transition
	best := cands[0]
	if len(cands) > 1 {
		if cands[1].gap < best.gap {
			best = cands[1]
		}
		m.log.Debug("多个机制模板同时匹配, 选择最接近预测时间的 %s", best.occ.Entry.ID)
		out = append(out, Transition{
			Kind: TransitionAmbiguous, From: s.State, To: s.State, SessionID: s.ID, At: at,
			Detail: fmt.Sprintf("%s 与 %s 同时匹配", cands[0].occ.Entry.ID, cands[1].occ.Entry.ID),
		})
	}

	occ := best.occ
	delta := at.Sub(occ.Predicted)
	newOffset := corr.RecordObservation(occ.Entry.ID, occ.Predicted, at)
	occ.Confirmed = true

	// 等待清除期间只学习偏移，清除时会重新定锚
	if s.State == StateActive {
		s.Anchor = Anchor{
			At:         at,
			Nominal:    m.table.Nominal(occ.Index, occ.Cycle),
			OffsetBase: newOffset,
		}
	}

	if best.late {
		s.Last = &occ
		return append(out, Transition{
			Kind: TransitionConfirmed, From: s.State, To: s.State, SessionID: s.ID, At: at,
			Occurrence: &occ, Delta: delta,
		})
	}

	// 下一个机制被提前或准时观测到：立即到期并推进
	occ.DueAt = at
	out = append(out, Transition{
		Kind: TransitionConfirmed, From: s.State, To: s.State, SessionID: s.ID, At: at,
		Occurrence: &occ, Delta: delta,
	})
	return append(out, m.markDue(occ, at)...)
}

// advanceByTimer 推进所有已到期的机制；一次最多推进一整轮，剩余的下个周期继续
func (m *Machine) advanceByTimer(now time.Time, offset time.Duration) []Transition {
	var out []Transition
	for i := 0; i <= m.table.Len(); i++ {
		s := m.session
		if s == nil || s.State != StateActive || s.exhausted {
			break
		}
		occ := m.occurrence(s.Index, s.Cycle, offset)
		if now.Before(occ.Predicted) {
			break
		}
		out = append(out, m.markDue(occ, now)...)
	}
	return out
}

// markDue 记录到期机制并推进位置
func (m *Machine) markDue(occ Occurrence, at time.Time) []Transition {
	s := m.session
	s.Last = &occ
	due := occ
	out := []Transition{{
		Kind: TransitionDue, From: s.State, To: s.State, SessionID: s.ID, At: at, Occurrence: &due,
	}}

	next, cycle, ok := m.table.Next(occ.Index, occ.Cycle)
	if ok {
		s.Index, s.Cycle = next, cycle
	} else {
		s.exhausted = true
	}

	if occ.Entry.RequiresClear {
		s.WaitingSince = occ.DueAt
		m.setState(StateClearedWait)
		m.log.Info("%s 需要手动确认清除", occ.Entry.Label)
		waiting := occ
		return append(out, Transition{
			Kind: TransitionWaiting, From: StateActive, To: StateClearedWait, SessionID: s.ID, At: at,
			Occurrence: &waiting,
		})
	}
	if s.exhausted {
		return append(out, m.end(at, EndRotationComplete))
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
