package alert

import (
	"testing"
	"time"

	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/rotation"
)

var base = time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

func occ(index int, due time.Duration, lead time.Duration) encounter.Occurrence {
	return encounter.Occurrence{
		OccurrenceKey: encounter.OccurrenceKey{SessionID: "s1", Index: index},
		Entry:         rotation.Entry{ID: "slimes", Label: "Slimes"},
		Predicted:     base.Add(due),
		DueAt:         base.Add(due),
		Lead:          lead,
	}
}

func TestCountdownThenNow(t *testing.T) {
	s := NewScheduler()
	o := occ(0, 10*time.Second, 3*time.Second)

	if ev := s.Evaluate(base.Add(6*time.Second), o); len(ev) != 0 {
		t.Errorf("提前量之外不应提醒: %+v", ev)
	}

	ev := s.Evaluate(base.Add(7*time.Second), o)
	if len(ev) != 1 || ev[0].Kind != KindCountdown {
		t.Fatalf("应触发倒计时: %+v", ev)
	}
	if ev[0].Text() != "Slimes in 3…" {
		t.Errorf("倒计时文本 = %q", ev[0].Text())
	}

	for d := 7100 * time.Millisecond; d < 10*time.Second; d += 100 * time.Millisecond {
		if ev := s.Evaluate(base.Add(d), o); len(ev) != 0 {
			t.Fatalf("倒计时重复触发 @%s: %+v", d, ev)
		}
	}

	ev = s.Evaluate(base.Add(10*time.Second), o)
	if len(ev) != 1 || ev[0].Kind != KindNow || ev[0].Text() != "Slimes NOW!" {
		t.Fatalf("应触发 NOW: %+v", ev)
	}
	if ev := s.Evaluate(base.Add(10100*time.Millisecond), o); len(ev) != 0 {
		t.Errorf("NOW 重复触发: %+v", ev)
	}
}

func TestNowWithoutCountdownWhenLate(t *testing.T) {
	s := NewScheduler()
	o := occ(0, 10*time.Second, 3*time.Second)

	ev := s.Evaluate(base.Add(10500*time.Millisecond), o)
	if len(ev) != 1 || ev[0].Kind != KindNow {
		t.Fatalf("只应触发 NOW: %+v", ev)
	}
	if ev := s.Evaluate(base.Add(11*time.Second), o); len(ev) != 0 {
		t.Errorf("不应补发倒计时: %+v", ev)
	}
}

func TestStaleNowIsMissed(t *testing.T) {
	s := NewScheduler()
	o := occ(0, 10*time.Second, 3*time.Second)

	if ev := s.Evaluate(base.Add(15*time.Second), o); len(ev) != 0 {
		t.Errorf("过期的 NOW 不应触发: %+v", ev)
	}
	if s.Missed() != 1 {
		t.Errorf("Missed = %d, 期望 1", s.Missed())
	}
	s.Reset()
	if s.Missed() != 0 {
		t.Errorf("Reset 后 Missed 应清零, 实际 %d", s.Missed())
	}
}

func TestDisabledKinds(t *testing.T) {
	s := NewScheduler(WithCountdown(false))
	o := occ(0, 10*time.Second, 3*time.Second)

	if ev := s.Evaluate(base.Add(8*time.Second), o); len(ev) != 0 {
		t.Errorf("禁用的倒计时不应触发: %+v", ev)
	}
	s.SetEnabled(true, true)
	if ev := s.Evaluate(base.Add(9*time.Second), o); len(ev) != 0 {
		t.Errorf("已标记的倒计时不应在启用后补发: %+v", ev)
	}
	if ev := s.Evaluate(base.Add(10*time.Second), o); len(ev) != 1 {
		t.Errorf("NOW 应触发: %+v", ev)
	}
}

func TestOccurrencesAreIndependent(t *testing.T) {
	s := NewScheduler()
	a := occ(0, 0, 3*time.Second)
	b := occ(1, 0, 3*time.Second)
	b.Cycle = 1

	ev := s.Evaluate(base, a, b)
	if len(ev) != 2 {
		t.Fatalf("两个不同出现都应触发: %+v", ev)
	}
	if ev[0].Index != 0 || ev[1].Cycle != 1 {
		t.Errorf("事件键错误: %+v", ev)
	}
}

func TestReset(t *testing.T) {
	s := NewScheduler()
	o := occ(0, 0, 0)
	s.Evaluate(base, o)
	s.Reset()
	if ev := s.Evaluate(base, o); len(ev) != 1 {
		t.Errorf("重置后应重新触发: %+v", ev)
	}
}
