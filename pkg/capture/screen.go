package capture

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/go-vgo/robotgo"
)

// DefaultTimeout 单次截屏超时
const DefaultTimeout = 500 * time.Millisecond

// GrabFunc 截取屏幕区域的底层函数，参数为 robotgo 输入坐标
type GrabFunc func(x, y, w, h int) (image.Image, error)

// ScreenSource 截取固定区域的帧来源
type ScreenSource struct {
	region  Region
	timeout time.Duration
	grab    GrabFunc

	// 超时后底层截屏仍可能阻塞，期间不再发起新的截屏
	busy atomic.Bool
}

// ScreenOption 选项函数
type ScreenOption func(*ScreenSource)

// WithTimeout 设置截屏超时
func WithTimeout(d time.Duration) ScreenOption {
	return func(s *ScreenSource) {
		s.timeout = d
	}
}

// WithGrabFunc 替换底层截屏函数
func WithGrabFunc(fn GrabFunc) ScreenOption {
	return func(s *ScreenSource) {
		s.grab = fn
	}
}

// NewScreenSource 创建区域截取器；区域应已通过 Validate
func NewScreenSource(region Region, opts ...ScreenOption) *ScreenSource {
	s := &ScreenSource{
		region:  region,
		timeout: DefaultTimeout,
		grab:    robotgoGrab,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func robotgoGrab(x, y, w, h int) (image.Image, error) {
	return robotgo.CaptureImg(x, y, w, h)
}

// Region 返回截取区域
func (s *ScreenSource) Region() Region {
	return s.region
}

type grabResult struct {
	img image.Image
	err error
}

// Capture 截取一帧，超时或失败时返回 ErrCaptureUnavailable
func (s *ScreenSource) Capture(ctx context.Context) (image.Image, error) {
	x, y, w, h := NormalizeRegionForCapture(s.region.X, s.region.Y, s.region.W, s.region.H)

	if !s.busy.CompareAndSwap(false, true) {
		return nil, &UnavailableError{Reason: "上一次截屏仍未结束"}
	}
	done := make(chan grabResult, 1)
	go func() {
		r := s.grabOnce(x, y, w, h)
		s.busy.Store(false)
		done <- r
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &UnavailableError{Reason: "超时"}
	case r := <-done:
		if r.err != nil {
			if _, ok := r.err.(*UnavailableError); ok {
				return nil, r.err
			}
			return nil, &UnavailableError{Reason: "截取区域失败", Err: r.err}
		}
		if r.img == nil || r.img.Bounds().Empty() {
			return nil, &UnavailableError{Reason: "截图为空"}
		}
		return r.img, nil
	}
}

func (s *ScreenSource) grabOnce(x, y, w, h int) (r grabResult) {
	defer func() {
		if p := recover(); p != nil {
			r = grabResult{err: &UnavailableError{Reason: "截屏崩溃"}}
		}
	}()
	img, err := s.grab(x, y, w, h)
	return grabResult{img: img, err: err}
}

// Displays 返回所有显示器的物理像素范围
func Displays() []image.Rectangle {
	n := robotgo.DisplaysNum()
	if n <= 0 {
		w, h := GetPhysicalScreenSize()
		if w <= 0 || h <= 0 {
			return nil
		}
		return []image.Rectangle{image.Rect(0, 0, w, h)}
	}

	rects := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		x, y, w, h := robotgo.GetDisplayBounds(i)
		x, y, w, h = NormalizeRegionForScreen(x, y, w, h)
		if w > 0 && h > 0 {
			rects = append(rects, image.Rect(x, y, x+w, y+h))
		}
	}
	return rects
}
