// Package offset 维护预测时间与实际观测之间的校正量
//
// 正的偏移表示机制比名义时间更晚出现。手动微调和自动观测校正都会
// 立即持久化，重启后由配置重新加载。
package offset

import (
	"sync"
	"time"

	"github.com/susalert/susalert/internal/logger"
)

const (
	// DefaultLimit 偏移总量上限
	DefaultLimit = 5 * time.Second
	// DefaultMaxStep 单次观测允许的最大校正量
	DefaultMaxStep = 750 * time.Millisecond
	// NudgeStep 手动微调步长
	NudgeStep = 100 * time.Millisecond
)

// Store 偏移持久化接口
type Store interface {
	SaveOffset(offset time.Duration) error
}

// Options 校正器选项
type Options struct {
	Limit   time.Duration
	MaxStep time.Duration
	Store   Store
	Logger  *logger.Logger
}

// Option 选项函数
type Option func(*Options)

// WithLimit 设置偏移总量上限
func WithLimit(limit time.Duration) Option {
	return func(o *Options) {
		o.Limit = limit
	}
}

// WithMaxStep 设置单次观测最大校正量
func WithMaxStep(step time.Duration) Option {
	return func(o *Options) {
		o.MaxStep = step
	}
}

// WithStore 设置持久化存储
func WithStore(store Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithLogger 设置日志
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Corrector 偏移校正器
type Corrector struct {
	mu     sync.Mutex
	offset time.Duration
	opts   Options
}

// New 以初始偏移创建校正器
func New(initial time.Duration, opts ...Option) *Corrector {
	o := Options{
		Limit:   DefaultLimit,
		MaxStep: DefaultMaxStep,
		Logger:  logger.Named("offset"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Corrector{opts: o}
	c.offset = c.bound(initial)
	return c
}

// Detached 复制当前偏移和限制，返回不持久化的校正器
// 演示模式使用，模拟观测不会写入配置
func (c *Corrector) Detached() *Corrector {
	o := c.opts
	o.Store = nil
	return &Corrector{opts: o, offset: c.Offset()}
}

// Offset 返回当前偏移
func (c *Corrector) Offset() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// ApplyManualNudge 手动微调偏移，立即生效并持久化
func (c *Corrector) ApplyManualNudge(delta time.Duration) time.Duration {
	c.mu.Lock()
	c.offset = c.bound(c.offset + delta)
	v := c.offset
	c.mu.Unlock()

	c.opts.Logger.Info("手动微调 %+dms -> 偏移 %dms", delta.Milliseconds(), v.Milliseconds())
	c.persist(v)
	return v
}

// RecordObservation 根据机制的预测时间和实际观测时间校正偏移
// delta = observed - predicted，单次校正量被限制在 MaxStep 内
func (c *Corrector) RecordObservation(mechanicID string, predicted, observed time.Time) time.Duration {
	delta := observed.Sub(predicted)
	step := clamp(delta, c.opts.MaxStep)

	c.mu.Lock()
	c.offset = c.bound(c.offset + step)
	v := c.offset
	c.mu.Unlock()

	if step != delta {
		c.opts.Logger.Warn("%s 观测偏差 %dms 超出单次上限, 仅校正 %dms", mechanicID, delta.Milliseconds(), step.Milliseconds())
	} else {
		c.opts.Logger.Debug("%s 观测偏差 %dms -> 偏移 %dms", mechanicID, delta.Milliseconds(), v.Milliseconds())
	}
	c.persist(v)
	return v
}

// Reset 清零偏移并持久化
func (c *Corrector) Reset() {
	c.mu.Lock()
	c.offset = 0
	c.mu.Unlock()

	c.opts.Logger.Info("偏移已重置")
	c.persist(0)
}

func (c *Corrector) persist(v time.Duration) {
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.SaveOffset(v); err != nil {
		c.opts.Logger.Error("保存偏移失败: %v", err)
	}
}

func (c *Corrector) bound(v time.Duration) time.Duration {
	if c.opts.Limit <= 0 {
		return v
	}
	return clamp(v, c.opts.Limit)
}

func clamp(v, limit time.Duration) time.Duration {
	if limit <= 0 {
		return v
	}
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
