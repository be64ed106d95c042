// Package clock 提供可替换的时间源，便于确定性测试
package clock

import (
	"sync"
	"time"
)

// Clock 当前时间抽象
type Clock interface {
	Now() time.Time
}

// RealClock 系统时钟
type RealClock struct{}

// Now 返回当前时间
func (RealClock) Now() time.Time {
	return time.Now()
}

// Fake 手动推进的时钟
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake 创建起始于 start 的假时钟
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now 返回当前假时间
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance 推进时间
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return f.now
}

// Set 设置为指定时间
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
