// Package monitor 驱动截屏、匹配、状态机和提醒的固定周期循环
//
// 会话状态和时间偏移只由循环 goroutine 修改。界面操作通过 Send 进入命令队列，
// 在下一个周期开始时统一执行；状态和提醒通过 Subscribe 的通道单向发出。
package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/clock"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/offset"
	"github.com/susalert/susalert/pkg/vision"
)

const (
	// DefaultInterval 默认轮询间隔
	DefaultInterval = 120 * time.Millisecond
	// DefaultDemoClearDelay 演示模式自动清除前的等待
	DefaultDemoClearDelay = 3 * time.Second

	commandBuffer   = 64
	subscribeBuffer = 32
)

// Detector 产生一帧匹配结果
type Detector interface {
	Detect(ctx context.Context, at time.Time) (vision.MatchResult, error)
}

// ClientGate 游戏客户端检测
type ClientGate interface {
	Running(ctx context.Context) bool
}

// Options 监控参数
type Options struct {
	Interval       time.Duration
	Clock          clock.Clock
	Detector       Detector
	Demo           *DemoSource
	DemoEnabled    bool
	DemoClearDelay time.Duration
	// Calibrate 开始前检查标定区域，返回错误时拒绝开始
	Calibrate  func() error
	ClientGate ClientGate
	Logger     *logger.Logger
}

// Option 选项函数
type Option func(*Options)

// WithInterval 设置轮询间隔
func WithInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Interval = d
		}
	}
}

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

// WithDetector 设置实时检测器
func WithDetector(d Detector) Option {
	return func(o *Options) {
		o.Detector = d
	}
}

// WithDemo 设置演示生成器及初始开关
func WithDemo(demo *DemoSource, enabled bool) Option {
	return func(o *Options) {
		o.Demo = demo
		o.DemoEnabled = enabled
	}
}

// WithDemoClearDelay 设置演示模式自动清除的等待
func WithDemoClearDelay(d time.Duration) Option {
	return func(o *Options) {
		o.DemoClearDelay = d
	}
}

// WithCalibration 设置标定检查
func WithCalibration(fn func() error) Option {
	return func(o *Options) {
		o.Calibrate = fn
	}
}

// WithClientGate 设置游戏客户端检测
func WithClientGate(g ClientGate) Option {
	return func(o *Options) {
		o.ClientGate = g
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Monitor 监控循环
type Monitor struct {
	opts    Options
	machine *encounter.Machine
	corr    *offset.Corrector
	// demoCorr 演示模式使用的不持久化副本
	demoCorr *offset.Corrector
	sched    *alert.Scheduler
	log      *logger.Logger

	commands chan Command

	// 以下字段只由循环 goroutine 访问
	running   bool
	demo      bool
	status    Status
	detail    string
	lastAlert *alert.Event
	ticks     uint64
	overruns  uint64

	snapMu sync.RWMutex
	snap   Snapshot

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

// New 创建监控循环
func New(machine *encounter.Machine, corr *offset.Corrector, sched *alert.Scheduler, opts ...Option) *Monitor {
	o := Options{
		Interval:       DefaultInterval,
		Clock:          clock.RealClock{},
		DemoClearDelay: DefaultDemoClearDelay,
		Logger:         logger.Named("monitor"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Monitor{
		opts:     o,
		machine:  machine,
		corr:     corr,
		sched:    sched,
		log:      o.Logger,
		commands: make(chan Command, commandBuffer),
		demo:     o.DemoEnabled && o.Demo != nil,
		status:   StatusStopped,
		subs:     make(map[chan Update]struct{}),
	}
	if m.demo {
		m.demoCorr = corr.Detached()
	}
	m.snap = m.buildSnapshot(o.Clock.Now())
	return m
}

// Send 将命令放入队列，下一个周期执行
func (m *Monitor) Send(cmd Command) error {
	if cmd.At.IsZero() {
		cmd.At = m.opts.Clock.Now()
	}
	select {
	case m.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Start 开始监控；非演示模式下先检查标定
// 标定无效时仍发送命令，由循环记录状态，直到下一次成功开始
func (m *Monitor) Start() error {
	if !m.Snapshot().Demo {
		if err := m.checkCalibration(); err != nil {
			m.log.Error("无法开始监控: %v", err)
			m.snapMu.Lock()
			m.snap.Status = StatusCalibrationInvalid
			m.snap.StatusDetail = err.Error()
			m.snapMu.Unlock()
			m.Send(Command{Kind: CmdStart})
			return err
		}
	}
	return m.Send(Command{Kind: CmdStart})
}

// Stop 停止监控并取消未触发的提醒
func (m *Monitor) Stop() error { return m.Send(Command{Kind: CmdStop}) }

// Clear 确认清除
func (m *Monitor) Clear() error { return m.Send(Command{Kind: CmdCleared}) }

// Nudge 手动微调偏移
func (m *Monitor) Nudge(delta time.Duration) error {
	return m.Send(Command{Kind: CmdNudge, Delta: delta})
}

// SetDemo 切换演示模式
func (m *Monitor) SetDemo(enabled bool) error {
	return m.Send(Command{Kind: CmdSetDemo, Enabled: enabled})
}

// SetAlerts 切换倒计时和 NOW 提醒
func (m *Monitor) SetAlerts(countdown, now bool) error {
	return m.Send(Command{Kind: CmdSetAlerts, Countdown: countdown, Now: now})
}

// ResetSession 结束当前会话
func (m *Monitor) ResetSession() error { return m.Send(Command{Kind: CmdResetSession}) }

// ResetOffset 清零偏移
func (m *Monitor) ResetOffset() error { return m.Send(Command{Kind: CmdResetOffset}) }

// Snapshot 最近一次的状态
func (m *Monitor) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// Subscribe 订阅通知，返回的函数用于取消订阅
// 订阅者处理不及时时通知会被丢弃
func (m *Monitor) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscribeBuffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) publish(u Update) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Run 运行循环直到 ctx 取消
// 下一个周期在上一个周期开始后 Interval 执行；超时的周期之后立即执行下一个，不累积
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("监控循环启动, 间隔 %s", m.opts.Interval)
	defer m.log.Info("监控循环退出")

	for {
		start := m.opts.Clock.Now()
		m.Tick(ctx)

		if err := ctx.Err(); err != nil {
			m.shutdown()
			return nil
		}

		wait := m.opts.Interval - m.opts.Clock.Now().Sub(start)
		if wait <= 0 {
			m.overruns++
			m.log.LogEvent("tick", true, float64(m.opts.Interval-wait)/float64(time.Millisecond), "周期超时")
			continue
		}

		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-time.After(wait):
		}
	}
}

// shutdown 退出前结束会话
func (m *Monitor) shutdown() {
	m.drain(m.opts.Clock.Now())
	if m.running {
		m.stop(m.opts.Clock.Now())
	}
}

// Tick 执行一个周期；任何错误都不会中断循环
func (m *Monitor) Tick(ctx context.Context) {
	now := m.opts.Clock.Now()
	m.ticks++

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("周期异常: %v\n%s", r, debug.Stack())
			m.setStatus(StatusCaptureUnavailable, fmt.Sprint(r))
		}
		m.refresh(now)
	}()

	m.drain(now)
	if !m.running {
		return
	}

	if !m.demo && m.opts.ClientGate != nil && !m.opts.ClientGate.Running(ctx) {
		m.setStatus(StatusClientAbsent, "")
		return
	}

	det := m.detector()
	if det == nil {
		m.setStatus(StatusCaptureUnavailable, "未配置检测器")
		return
	}

	res, err := det.Detect(ctx, now)
	if err != nil {
		if m.status != StatusCaptureUnavailable {
			m.log.Warn("截屏失败, 本周期跳过: %v", err)
		}
		m.setStatus(StatusCaptureUnavailable, err.Error())
		// 会话不变，仍按计时提醒即将到来的机制
		m.evaluate(now)
		return
	}
	if m.status == StatusCaptureUnavailable {
		m.log.Info("截屏恢复")
	}
	m.setStatus(StatusRunning, "")

	due := m.handle(m.machine.Step(now, res, m.corrector()), now)
	due = append(due, m.autoClear(now)...)
	m.evaluate(now, due...)
}

// corrector 当前使用的校正器，演示模式下为副本
func (m *Monitor) corrector() *offset.Corrector {
	if m.demo && m.demoCorr != nil {
		return m.demoCorr
	}
	return m.corr
}

func (m *Monitor) detector() Detector {
	if m.demo {
		return m.opts.Demo
	}
	return m.opts.Detector
}

func (m *Monitor) checkCalibration() error {
	if m.opts.Calibrate == nil {
		return nil
	}
	return m.opts.Calibrate()
}

// drain 执行队列中的全部命令
func (m *Monitor) drain(now time.Time) {
	for {
		select {
		case cmd := <-m.commands:
			m.apply(cmd, now)
		default:
			return
		}
	}
}

func (m *Monitor) apply(cmd Command, now time.Time) {
	m.log.Debug("执行命令 %s", cmd.Kind)

	switch cmd.Kind {
	case CmdStart:
		if m.running {
			return
		}
		if !m.demo {
			if err := m.checkCalibration(); err != nil {
				m.log.Error("标定无效, 不开始监控: %v", err)
				m.setStatus(StatusCalibrationInvalid, err.Error())
				return
			}
		}
		m.running = true
		m.sched.Reset()
		if m.opts.Demo != nil {
			m.opts.Demo.Reset()
		}
		m.setStatus(StatusRunning, "")
		m.log.Info("开始监控 (演示模式: %v)", m.demo)

	case CmdStop:
		if m.running {
			m.stop(now)
		}

	case CmdCleared:
		at := cmd.At
		if at.IsZero() || at.After(now) {
			at = now
		}
		m.handle(m.machine.Clear(at, m.corrector().Offset()), now)

	case CmdNudge:
		v := m.corrector().ApplyManualNudge(cmd.Delta)
		m.log.Info("偏移调整为 %dms", v.Milliseconds())

	case CmdSetDemo:
		enabled := cmd.Enabled && m.opts.Demo != nil
		if enabled == m.demo {
			return
		}
		if m.machine.State() != encounter.StateIdle {
			m.handle(m.machine.Reset(now, encounter.EndManualReset), now)
		}
		m.demo = enabled
		if m.opts.Demo != nil {
			m.opts.Demo.Reset()
		}
		if enabled {
			m.demoCorr = m.corr.Detached()
		} else {
			m.demoCorr = nil
		}
		m.log.Info("演示模式: %v, 偏移 %dms", enabled, m.corrector().Offset().Milliseconds())

	case CmdSetAlerts:
		m.sched.SetEnabled(cmd.Countdown, cmd.Now)
		m.log.Info("提醒开关: 倒计时 %v, NOW %v", cmd.Countdown, cmd.Now)

	case CmdResetSession:
		m.handle(m.machine.Reset(now, encounter.EndManualReset), now)

	case CmdResetOffset:
		m.corrector().Reset()

	default:
		m.log.Warn("未知命令: %s", cmd.Kind)
	}
}

func (m *Monitor) stop(now time.Time) {
	m.handle(m.machine.Reset(now, encounter.EndStopped), now)
	m.sched.Reset()
	m.running = false
	m.setStatus(StatusStopped, "")
	m.publish(Update{Kind: UpdateCancel})
	m.log.Info("停止监控")
}

// handle 发布状态机转换，返回本周期到期的机制
func (m *Monitor) handle(trs []encounter.Transition, now time.Time) []encounter.Occurrence {
	var due []encounter.Occurrence
	for i := range trs {
		tr := trs[i]
		switch tr.Kind {
		case encounter.TransitionDue:
			due = append(due, *tr.Occurrence)
			continue
		case encounter.TransitionStarted:
			m.sched.Reset()
		case encounter.TransitionEnded:
			m.sched.Reset()
			m.publish(Update{Kind: UpdateCancel, Transition: &tr})
		case encounter.TransitionCleared:
			if m.demo && tr.Occurrence != nil {
				tbl := m.machine.Table()
				m.opts.Demo.Cleared(tr.At, tbl.Nominal(tr.Occurrence.Index, tr.Occurrence.Cycle))
			}
		case encounter.TransitionConfirmed:
			m.publish(Update{Kind: UpdateObservation, Transition: &tr})
			continue
		case encounter.TransitionAmbiguous:
			m.log.Debug("歧义匹配: %s", tr.Detail)
		}
		m.publish(Update{Kind: UpdateSession, Transition: &tr})
	}
	return due
}

// autoClear 演示模式下等待一段时间后自动确认清除
func (m *Monitor) autoClear(now time.Time) []encounter.Occurrence {
	if !m.demo || !m.opts.Demo.AutoClear() || m.machine.State() != encounter.StateClearedWait {
		return nil
	}
	s := m.machine.Session()
	if now.Sub(s.WaitingSince) < m.opts.DemoClearDelay {
		return nil
	}
	return m.handle(m.machine.Clear(now, m.corrector().Offset()), now)
}

// evaluate 检查到期和即将到期的机制并发布提醒
func (m *Monitor) evaluate(now time.Time, due ...encounter.Occurrence) {
	occs := due
	if up, ok := m.machine.Upcoming(m.corrector().Offset()); ok {
		occs = append(occs, up)
	}
	for _, ev := range m.sched.Evaluate(now, occs...) {
		ev := ev
		m.lastAlert = &ev
		m.log.Info("提醒: %s", ev.Text())
		m.publish(Update{Kind: UpdateAlert, Alert: &ev})
	}
}

func (m *Monitor) setStatus(s Status, detail string) {
	m.status = s
	m.detail = detail
}

// refresh 更新快照并发布
func (m *Monitor) refresh(now time.Time) {
	snap := m.buildSnapshot(now)
	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()
	m.publish(Update{Kind: UpdateState, Snapshot: &snap})
}

func (m *Monitor) buildSnapshot(now time.Time) Snapshot {
	off := m.corrector().Offset()
	countdown, nowAlerts := m.sched.Enabled()
	snap := Snapshot{
		At:           now,
		Running:      m.running,
		Demo:         m.demo,
		Status:       m.status,
		StatusDetail: m.detail,
		State:        m.machine.State(),
		Offset:       off,
		Ticks:        m.ticks,
		Overruns:     m.overruns,
		Countdown:    countdown,
		NowAlerts:    nowAlerts,
		Missed:       m.sched.Missed(),
	}
	if m.lastAlert != nil {
		ev := *m.lastAlert
		snap.LastAlert = &ev
	}

	s := m.machine.Session()
	if s == nil {
		return snap
	}
	snap.SessionID = s.ID
	snap.StartedAt = s.StartedAt
	snap.Cycle = s.Cycle
	snap.Index = s.Index
	snap.Elapsed = m.machine.Elapsed(now, off)
	if s.State == encounter.StateClearedWait && s.Last != nil {
		snap.WaitingFor = s.Last.Entry.Label
		snap.WaitingSince = s.WaitingSince
	}
	if up, ok := m.machine.Upcoming(off); ok {
		snap.Next = &NextMechanic{
			ID:        up.Entry.ID,
			Label:     up.Entry.Label,
			Predicted: up.Predicted,
			Remaining: up.Predicted.Sub(now),
			Lead:      up.Lead,
		}
	}
	return snap
}
