package monitor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/clock"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/offset"
	"github.com/susalert/susalert/pkg/rotation"
	"github.com/susalert/susalert/pkg/vision"
)

var t0 = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

// stubDetector 总是看到开始标记，fail 时截屏失败
type stubDetector struct {
	fail  bool
	calls int
}

func (d *stubDetector) Detect(_ context.Context, at time.Time) (vision.MatchResult, error) {
	d.calls++
	if d.fail {
		return vision.MatchResult{}, errors.New("截屏超时")
	}
	r := vision.NewMatchResult(at)
	r.Add(vision.Match{TemplateID: "timer", Matched: true, Confidence: 0.9})
	return r, nil
}

type countingStore struct {
	saved []time.Duration
}

func (s *countingStore) SaveOffset(v time.Duration) error {
	s.saved = append(s.saved, v)
	return nil
}

type fixture struct {
	clk     *clock.Fake
	det     *stubDetector
	corr    *offset.Corrector
	store   *countingStore
	machine *encounter.Machine
	mon     *Monitor
	updates <-chan Update
	alerts  []alert.Event
	session []encounter.Transition
	cancels int
}

func abcTable() rotation.Table {
	return rotation.Table{
		Entries: []rotation.Entry{
			{ID: "a", Label: "A", Offset: 0},
			{ID: "b", Label: "B", Offset: 30 * time.Second},
			{ID: "c", Label: "C", Offset: 90 * time.Second},
		},
		CycleLength: 120 * time.Second,
		Repeat:      true,
		DefaultLead: 3 * time.Second,
	}
}

func newFixture(t *testing.T, table rotation.Table, opts ...Option) *fixture {
	t.Helper()

	cfg := encounter.Config{StartTemplate: "timer", EndTemplate: "end", ConfirmWindow: encounter.DefaultConfirmWindow}
	machine, err := encounter.NewMachine(table, cfg)
	if err != nil {
		t.Fatalf("创建状态机失败: %v", err)
	}

	f := &fixture{
		clk:     clock.NewFake(t0),
		det:     &stubDetector{},
		store:   &countingStore{},
		machine: machine,
	}
	f.corr = offset.New(0, offset.WithStore(f.store))

	all := append([]Option{WithClock(f.clk), WithDetector(f.det), WithInterval(time.Second)}, opts...)
	f.mon = New(machine, f.corr, alert.NewScheduler(), all...)

	ch, cancel := f.mon.Subscribe()
	t.Cleanup(cancel)
	f.updates = ch
	return f
}

// tick 执行一个周期并收集通知
func (f *fixture) tick() {
	f.mon.Tick(context.Background())
	for {
		select {
		case u := <-f.updates:
			switch u.Kind {
			case UpdateAlert:
				f.alerts = append(f.alerts, *u.Alert)
			case UpdateSession:
				f.session = append(f.session, *u.Transition)
			case UpdateCancel:
				f.cancels++
			}
		default:
			return
		}
	}
}

func (f *fixture) nowAlerts() []time.Duration {
	var out []time.Duration
	for _, ev := range f.alerts {
		if ev.Kind == alert.KindNow {
			out = append(out, ev.FireAt.Sub(t0))
		}
	}
	return out
}

func TestAlertsFireOnSchedule(t *testing.T) {
	f := newFixture(t, abcTable())
	if err := f.mon.Start(); err != nil {
		t.Fatalf("开始失败: %v", err)
	}

	for i := 0; i <= 100; i++ {
		f.tick()
		f.clk.Advance(time.Second)
	}

	if want := []time.Duration{0, 30 * time.Second, 90 * time.Second}; !reflect.DeepEqual(f.nowAlerts(), want) {
		t.Errorf("NOW 提醒时间 = %v, 期望 %v", f.nowAlerts(), want)
	}

	var countdowns []time.Duration
	for _, ev := range f.alerts {
		if ev.Kind == alert.KindCountdown {
			countdowns = append(countdowns, ev.FireAt.Sub(t0))
		}
	}
	if want := []time.Duration{27 * time.Second, 87 * time.Second}; !reflect.DeepEqual(countdowns, want) {
		t.Errorf("倒计时提醒时间 = %v, 期望 %v", countdowns, want)
	}

	snap := f.mon.Snapshot()
	if snap.State != encounter.StateActive || snap.Next == nil || snap.Next.ID != "a" {
		t.Errorf("快照错误: %+v", snap)
	}
	if snap.Elapsed != 100*time.Second {
		t.Errorf("经过时间 = %s, 期望 100s", snap.Elapsed)
	}
}

func TestNoDuplicateAlertsAtHighTickRate(t *testing.T) {
	f := newFixture(t, abcTable())
	f.mon.Start()

	for i := 0; i < 1000; i++ {
		f.tick()
		f.clk.Advance(37 * time.Millisecond)
	}

	seen := make(map[string]bool)
	for _, ev := range f.alerts {
		key := ev.SessionID + "/" + ev.MechanicID + "/" + string(ev.Kind)
		if seen[key] {
			t.Errorf("重复提醒: %s", key)
		}
		seen[key] = true
	}
	if len(f.nowAlerts()) != 2 {
		t.Errorf("37s 内应有 2 个 NOW 提醒, 实际 %v", f.nowAlerts())
	}
}

func TestCaptureFailureLeavesSessionUnchanged(t *testing.T) {
	f := newFixture(t, abcTable())
	f.mon.Start()

	for i := 0; i <= 10; i++ {
		f.tick()
		f.clk.Advance(time.Second)
	}
	before := f.machine.Session()
	sessions := len(f.session)

	f.det.fail = true
	f.tick()

	if after := f.machine.Session(); !reflect.DeepEqual(before, after) {
		t.Errorf("截屏失败后会话被修改:\n前 %+v\n后 %+v", before, after)
	}
	if s := f.mon.Snapshot().Status; s != StatusCaptureUnavailable {
		t.Errorf("状态 = %s, 期望 %s", s, StatusCaptureUnavailable)
	}

	f.det.fail = false
	f.clk.Advance(time.Second)
	f.tick()

	snap := f.mon.Snapshot()
	if snap.Status != StatusRunning || snap.SessionID != before.ID {
		t.Errorf("恢复后应继续原会话: %+v", snap)
	}
	if len(f.session) != sessions {
		t.Errorf("恢复后不应重新开始会话: %+v", f.session[sessions:])
	}
}

func TestStartRequiresCalibration(t *testing.T) {
	errBad := errors.New("区域超出屏幕")
	f := newFixture(t, abcTable(), WithCalibration(func() error { return errBad }))

	if err := f.mon.Start(); !errors.Is(err, errBad) {
		t.Fatalf("应返回标定错误, 实际 %v", err)
	}
	if s := f.mon.Snapshot().Status; s != StatusCalibrationInvalid {
		t.Errorf("状态 = %s, 期望 %s", s, StatusCalibrationInvalid)
	}

	f.tick()
	if f.det.calls != 0 {
		t.Error("标定无效时不应截屏")
	}
	f.clk.Advance(time.Second)
	f.tick()
	snap := f.mon.Snapshot()
	if snap.Status != StatusCalibrationInvalid || snap.StatusDetail != errBad.Error() {
		t.Errorf("周期后标定错误应保留: %s %q", snap.Status, snap.StatusDetail)
	}
	if snap.Running {
		t.Error("标定无效时不应运行")
	}
}

func TestCommandsApplyOnNextTick(t *testing.T) {
	f := newFixture(t, abcTable())
	f.mon.Start()
	f.tick()

	if err := f.mon.Nudge(500 * time.Millisecond); err != nil {
		t.Fatalf("发送命令失败: %v", err)
	}
	if f.corr.Offset() != 0 {
		t.Error("命令不应在周期外执行")
	}

	f.clk.Advance(time.Second)
	f.tick()
	if f.corr.Offset() != 500*time.Millisecond {
		t.Errorf("偏移 = %s, 期望 500ms", f.corr.Offset())
	}
	if n := len(f.store.saved); n != 1 {
		t.Errorf("偏移应持久化一次, 实际 %d", n)
	}
	if next := f.mon.Snapshot().Next; next == nil || !next.Predicted.Equal(t0.Add(30500*time.Millisecond)) {
		t.Errorf("微调后预测错误: %+v", next)
	}
}

func TestStopCancelsAndKeepsOffset(t *testing.T) {
	f := newFixture(t, abcTable())
	f.corr.ApplyManualNudge(time.Second)
	saved := len(f.store.saved)

	f.mon.Start()
	f.tick()
	f.mon.Stop()
	f.clk.Advance(time.Second)
	f.tick()

	if f.cancels == 0 {
		t.Error("停止应取消未触发的提醒")
	}
	if f.machine.State() != encounter.StateIdle {
		t.Error("停止后应回到 IDLE")
	}
	if len(f.store.saved) != saved || f.corr.Offset() != time.Second {
		t.Error("停止不应修改偏移")
	}
	snap := f.mon.Snapshot()
	if snap.Running || snap.Status != StatusStopped {
		t.Errorf("快照状态错误: %+v", snap)
	}

	calls := f.det.calls
	f.clk.Advance(time.Second)
	f.tick()
	if f.det.calls != calls {
		t.Error("停止后不应截屏")
	}
}

func TestClearedCommandResumesFromAck(t *testing.T) {
	table := rotation.Table{
		Entries: []rotation.Entry{
			{ID: "a", Offset: 0},
			{ID: "mid", Label: "MID!", Offset: 10 * time.Second, RequiresClear: true},
			{ID: "b", Offset: 20 * time.Second},
		},
		CycleLength: 30 * time.Second,
		Repeat:      true,
	}
	f := newFixture(t, table)
	f.mon.Start()

	for i := 0; i <= 40; i++ {
		f.tick()
		if i < 40 {
			f.clk.Advance(time.Second)
		}
	}
	snap := f.mon.Snapshot()
	if snap.State != encounter.StateClearedWait || snap.WaitingFor != "MID!" {
		t.Fatalf("应在等待清除: %+v", snap)
	}
	if snap.Elapsed != 10*time.Second {
		t.Errorf("等待期间经过时间应冻结, 实际 %s", snap.Elapsed)
	}

	// 40s 时确认，下一个周期才执行
	f.mon.Clear()
	f.clk.Advance(500 * time.Millisecond)
	f.tick()

	snap = f.mon.Snapshot()
	if snap.State != encounter.StateActive || snap.Next == nil {
		t.Fatalf("清除后应恢复: %+v", snap)
	}
	if want := t0.Add(50 * time.Second); !snap.Next.Predicted.Equal(want) {
		t.Errorf("清除后预测 = %s, 期望 50s", snap.Next.Predicted.Sub(t0))
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	f := newFixture(t, abcTable())
	_, cancel := f.mon.Subscribe()
	defer cancel()

	f.mon.Start()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			f.mon.Tick(context.Background())
			f.clk.Advance(time.Second)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("未读取的订阅阻塞了循环")
	}
}

func TestPanicInTickIsIsolated(t *testing.T) {
	f := newFixture(t, abcTable(), WithDetector(panicDetector{}))
	f.mon.Start()
	f.tick()

	if s := f.mon.Snapshot().Status; s != StatusCaptureUnavailable {
		t.Errorf("异常周期状态 = %s", s)
	}
	f.tick()
	if f.mon.Snapshot().Ticks != 2 {
		t.Error("异常后循环应继续")
	}
}

type panicDetector struct{}

func (panicDetector) Detect(context.Context, time.Time) (vision.MatchResult, error) {
	panic("boom")
}

func TestOffsetRoundTripAcrossRestart(t *testing.T) {
	mgr := config.NewManagerWithDir(t.TempDir())

	settings, _ := mgr.Load()
	corr := offset.New(settings.TimeOffset(), offset.WithStore(mgr))
	corr.ApplyManualNudge(300 * time.Millisecond)
	corr.RecordObservation("b", t0, t0.Add(200*time.Millisecond))

	// 重启
	reloaded, err := config.NewManagerWithDir(mgr.GetConfigDir()).Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	next := offset.New(reloaded.TimeOffset())
	if next.Offset() != 500*time.Millisecond {
		t.Errorf("重启后偏移 = %s, 期望 500ms", next.Offset())
	}
}

func TestDemoModeRunsFullRotation(t *testing.T) {
	table := rotation.Default()
	demo := NewDemoSource(table, "timer", "end", WithDemoAutoClear(true))
	f := newFixture(t, table, WithDemo(demo, true), WithDetector(nil))

	if err := f.mon.Start(); err != nil {
		t.Fatalf("演示模式开始失败: %v", err)
	}
	for d := time.Duration(0); d <= 160*time.Second; d += 120 * time.Millisecond {
		f.tick()
		f.clk.Advance(120 * time.Millisecond)
	}

	if n := len(f.nowAlerts()); n != table.Len() {
		t.Errorf("NOW 提醒数量 = %d, 期望 %d", n, table.Len())
	}
	var cleared bool
	for _, tr := range f.session {
		if tr.Kind == encounter.TransitionCleared {
			cleared = true
		}
	}
	if !cleared {
		t.Error("演示模式应自动清除")
	}
	if f.mon.Snapshot().State != encounter.StateActive {
		t.Errorf("清除后应继续: %s", f.mon.Snapshot().State)
	}
	t.Logf("演示结束偏移: %s", f.corr.Offset())
}

func TestDemoSourceGatesAfterClearMechanic(t *testing.T) {
	table := rotation.Table{
		Entries: []rotation.Entry{
			{ID: "a", Offset: 5 * time.Second, Template: "a"},
			{ID: "mid", Offset: 10 * time.Second, Template: "mid", RequiresClear: true},
			{ID: "b", Offset: 15 * time.Second, Template: "b"},
		},
		CycleLength: 20 * time.Second,
		Repeat:      true,
	}
	demo := NewDemoSource(table, "timer", "")
	ctx := context.Background()

	demo.Detect(ctx, t0)
	if r, _ := demo.Detect(ctx, t0.Add(5*time.Second)); !r.Matched("a") || !r.Matched("timer") {
		t.Errorf("5s 应显示 a: %v", r.MatchedIDs())
	}
	if r, _ := demo.Detect(ctx, t0.Add(10*time.Second)); !r.Matched("mid") {
		t.Errorf("10s 应显示 mid: %v", r.MatchedIDs())
	}
	if r, _ := demo.Detect(ctx, t0.Add(15*time.Second)); r.Matched("b") {
		t.Error("未清除前不应显示后续机制")
	}

	demo.Cleared(t0.Add(30*time.Second), 10*time.Second)
	if r, _ := demo.Detect(ctx, t0.Add(30*time.Second)); r.Matched("mid") {
		t.Error("清除后不应再次显示 mid")
	}
	if r, _ := demo.Detect(ctx, t0.Add(35*time.Second)); !r.Matched("b") {
		t.Errorf("清除后 5s 应显示 b: %v", r.MatchedIDs())
	}
}

func TestDemoDoesNotPersistOffset(t *testing.T) {
	table := rotation.Default()
	demo := NewDemoSource(table, "timer", "end", WithDemoLatency(500*time.Millisecond), WithDemoAutoClear(true))
	f := newFixture(t, table, WithDemo(demo, true), WithDetector(nil))

	f.mon.Start()
	for d := time.Duration(0); d <= 40*time.Second; d += 120 * time.Millisecond {
		f.tick()
		f.clk.Advance(120 * time.Millisecond)
	}

	if got := f.mon.Snapshot().Offset; got <= 0 {
		t.Errorf("演示观测应校正演示偏移, 实际 %s", got)
	}
	if f.corr.Offset() != 0 || len(f.store.saved) != 0 {
		t.Errorf("演示模式不应修改或保存偏移: %s %v", f.corr.Offset(), f.store.saved)
	}

	f.mon.SetDemo(false)
	f.tick()
	if got := f.mon.Snapshot().Offset; got != 0 {
		t.Errorf("退出演示后应恢复原偏移, 实际 %s", got)
	}
}

func TestSetAlertsCommand(t *testing.T) {
	f := newFixture(t, abcTable())
	f.mon.Start()
	f.mon.SetAlerts(false, true)
	f.tick()

	snap := f.mon.Snapshot()
	if snap.Countdown || !snap.NowAlerts {
		t.Fatalf("提醒开关错误: countdown=%v now=%v", snap.Countdown, snap.NowAlerts)
	}
	for i := 0; i <= 30; i++ {
		f.clk.Advance(time.Second)
		f.tick()
	}
	for _, ev := range f.alerts {
		if ev.Kind == alert.KindCountdown {
			t.Errorf("关闭后不应有倒计时提醒: %+v", ev)
		}
	}
	if want := []time.Duration{0, 30 * time.Second}; !reflect.DeepEqual(f.nowAlerts(), want) {
		t.Errorf("NOW 提醒时间 = %v, 期望 %v", f.nowAlerts(), want)
	}
}
