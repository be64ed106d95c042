package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/susalert/susalert/pkg/rotation"
	"github.com/susalert/susalert/pkg/vision"
)

// DefaultDemoVisible 演示模式中机制模板可见的时长
const DefaultDemoVisible = 600 * time.Millisecond

// DemoSource 演示模式的检测结果生成器
// 按轮换表模拟游戏画面：开始标记一直可见，机制模板在名义时间（加上模拟延迟）出现一小段时间；
// 遇到需要清除的机制后停止出现新的模板，直到 Cleared 被调用
type DemoSource struct {
	table     rotation.Table
	startID   string
	endID     string
	latency   time.Duration
	visible   time.Duration
	autoClear bool

	mu            sync.Mutex
	started       bool
	anchorAt      time.Time
	anchorNominal time.Duration
	includeAnchor bool
}

// DemoOption 演示选项
type DemoOption func(*DemoSource)

// WithDemoLatency 模拟检测延迟
func WithDemoLatency(d time.Duration) DemoOption {
	return func(s *DemoSource) {
		s.latency = d
	}
}

// WithDemoVisible 模板可见时长
func WithDemoVisible(d time.Duration) DemoOption {
	return func(s *DemoSource) {
		if d > 0 {
			s.visible = d
		}
	}
}

// WithDemoAutoClear 需要清除的机制到期后自动确认
func WithDemoAutoClear(enabled bool) DemoOption {
	return func(s *DemoSource) {
		s.autoClear = enabled
	}
}

// NewDemoSource 创建演示生成器
func NewDemoSource(table rotation.Table, startID, endID string, opts ...DemoOption) *DemoSource {
	s := &DemoSource{
		table:   table,
		startID: startID,
		endID:   endID,
		visible: DefaultDemoVisible,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoClear 是否自动确认清除
func (s *DemoSource) AutoClear() bool {
	return s.autoClear
}

// Reset 回到战斗开始前
func (s *DemoSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
}

// Cleared 清除后从该机制的名义时间继续
func (s *DemoSource) Cleared(at time.Time, nominal time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorAt = at
	s.anchorNominal = nominal
	s.includeAnchor = false
}

// Detect 生成 at 时刻的匹配结果
func (s *DemoSource) Detect(_ context.Context, at time.Time) (vision.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := vision.NewMatchResult(at)
	if !s.started {
		s.started = true
		s.anchorAt = at
		s.anchorNominal = 0
		s.includeAnchor = true
	}

	pos := s.anchorNominal + at.Sub(s.anchorAt) - s.latency
	gate, gated := s.gate()

	if !s.table.Repeat && pos >= s.table.CycleLength+s.visible && !gated {
		s.add(&res, s.endID)
		return res, nil
	}
	s.add(&res, s.startID)

	cl := s.table.CycleLength
	first := int((pos - s.visible) / cl)
	if first < 0 {
		first = 0
	}
	last := int(pos / cl)
	if !s.table.Repeat && last > 0 {
		last = 0
	}
	for c := first; c <= last; c++ {
		for i := 0; i < s.table.Len(); i++ {
			e := s.table.Entry(i)
			n := s.table.Nominal(i, c)
			if e.Template == "" || pos < n || pos >= n+s.visible {
				continue
			}
			if n < s.anchorNominal || (n == s.anchorNominal && !s.includeAnchor) {
				continue
			}
			if gated && n > gate {
				continue
			}
			s.add(&res, e.Template)
		}
	}
	return res, nil
}

// gate 锚点之后第一个需要清除的机制的名义时间
func (s *DemoSource) gate() (time.Duration, bool) {
	cycles := 1
	if s.table.Repeat {
		cycles = int(s.anchorNominal/s.table.CycleLength) + 2
	}
	for c := 0; c < cycles; c++ {
		for i := 0; i < s.table.Len(); i++ {
			if !s.table.Entry(i).RequiresClear {
				continue
			}
			n := s.table.Nominal(i, c)
			if n > s.anchorNominal || (n == s.anchorNominal && s.includeAnchor) {
				return n, true
			}
		}
	}
	return 0, false
}

func (s *DemoSource) add(res *vision.MatchResult, id string) {
	if id == "" {
		return
	}
	res.Add(vision.Match{TemplateID: id, Confidence: 1, Matched: true})
}
