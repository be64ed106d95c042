package control

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/monitor"
)

type fakeMonitor struct {
	mu       sync.Mutex
	calls    []string
	nudge    time.Duration
	demo     bool
	startErr error
	snap     monitor.Snapshot
	updates  chan monitor.Update
}

func (f *fakeMonitor) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeMonitor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeMonitor) Start() error { f.record("start"); return f.startErr }
func (f *fakeMonitor) Stop() error  { f.record("stop"); return nil }
func (f *fakeMonitor) Clear() error { f.record("cleared"); return nil }
func (f *fakeMonitor) Nudge(d time.Duration) error {
	f.record("nudge")
	f.mu.Lock()
	f.nudge = d
	f.mu.Unlock()
	return nil
}
func (f *fakeMonitor) SetDemo(enabled bool) error {
	f.record("demo")
	f.mu.Lock()
	f.demo = enabled
	f.mu.Unlock()
	return nil
}
func (f *fakeMonitor) ResetSession() error {
	f.record("reset_session")
	return monitor.ErrCommandQueueFull
}
func (f *fakeMonitor) ResetOffset() error { f.record("reset_offset"); return nil }
func (f *fakeMonitor) Snapshot() monitor.Snapshot {
	return f.snap
}
func (f *fakeMonitor) Subscribe() (<-chan monitor.Update, func()) {
	return f.updates, func() {}
}

func setup(t *testing.T, mon *fakeMonitor) *Client {
	t.Helper()
	ln := bufconn.Listen(1 << 20)
	srv := NewServer(mon)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx, ln)
	}()

	c, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return ln.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		cancel()
		<-done
	})
	return c
}

func TestUnaryCommands(t *testing.T) {
	mon := &fakeMonitor{}
	c := setup(t, mon)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start 失败: %v", err)
	}
	if err := c.Cleared(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Nudge(ctx, -1500*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDemo(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := c.ResetOffset(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"start", "cleared", "nudge", "demo", "reset_offset", "stop"}
	got := mon.Calls()
	if len(got) != len(want) {
		t.Fatalf("调用 = %v, 期望 %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("第 %d 次调用 = %s, 期望 %s", i, got[i], want[i])
		}
	}
	if mon.nudge != -1500*time.Millisecond || !mon.demo {
		t.Errorf("参数错误: nudge=%v demo=%v", mon.nudge, mon.demo)
	}
}

func TestErrorCodes(t *testing.T) {
	mon := &fakeMonitor{startErr: errors.New("未校准")}
	c := setup(t, mon)
	ctx := context.Background()

	if err := c.Start(ctx); status.Code(err) != codes.FailedPrecondition {
		t.Errorf("Start 错误码 = %v, 期望 FailedPrecondition", status.Code(err))
	}
	if err := c.ResetSession(ctx); status.Code(err) != codes.ResourceExhausted {
		t.Errorf("ResetSession 错误码 = %v, 期望 ResourceExhausted", status.Code(err))
	}
}

func TestGetState(t *testing.T) {
	at := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	mon := &fakeMonitor{snap: monitor.Snapshot{
		At: at, Running: true, State: encounter.StateClearedWait, SessionID: "s1",
		Elapsed: 75 * time.Second, Offset: 250 * time.Millisecond, WaitingFor: "MID!",
	}}
	c := setup(t, mon)

	snap, err := c.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState 失败: %v", err)
	}
	if !snap.At.Equal(at) || snap.State != encounter.StateClearedWait || snap.SessionID != "s1" ||
		snap.Elapsed != 75*time.Second || snap.Offset != 250*time.Millisecond || snap.WaitingFor != "MID!" {
		t.Errorf("状态内容错误: %+v", snap)
	}
}

func TestWatch(t *testing.T) {
	mon := &fakeMonitor{
		snap:    monitor.Snapshot{Running: true, State: encounter.StateActive},
		updates: make(chan monitor.Update, 4),
	}
	mon.updates <- monitor.Update{Kind: monitor.UpdateAlert, Alert: &alert.Event{Label: "Stun", Kind: alert.KindNow}}
	mon.updates <- monitor.Update{Kind: monitor.UpdateCancel}
	close(mon.updates)

	c := setup(t, mon)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []monitor.Update
	err := c.Watch(ctx, func(u monitor.Update) error {
		got = append(got, u)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch 失败: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 条通知, 实际 %d", len(got))
	}
	if got[0].Kind != monitor.UpdateState || got[0].Snapshot == nil || got[0].Snapshot.State != encounter.StateActive {
		t.Errorf("首条应为当前状态: %+v", got[0])
	}
	if got[1].Alert == nil || got[1].Alert.Text() != "Stun NOW!" {
		t.Errorf("提醒内容错误: %+v", got[1])
	}
	if got[2].Kind != monitor.UpdateCancel {
		t.Errorf("第三条应为取消: %+v", got[2])
	}
}
