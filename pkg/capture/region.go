// Package capture 截取用户标定的屏幕区域
package capture

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrCaptureUnavailable 截屏后端不可用（无显示器、无权限、超时），下个周期重试
	ErrCaptureUnavailable = errors.New("截屏不可用")
	// ErrCalibrationInvalid 区域未标定或超出屏幕范围，阻止开始监控
	ErrCalibrationInvalid = errors.New("截取区域无效")
)

// Region 屏幕区域（物理像素）
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect 转换为 image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Empty 区域是否为空
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// CalibrationError 区域标定错误
type CalibrationError struct {
	Region Region
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("截取区域 %s 无效: %s", e.Region, e.Reason)
}

// Is 使 errors.Is(err, ErrCalibrationInvalid) 成立
func (e *CalibrationError) Is(target error) bool {
	return target == ErrCalibrationInvalid
}

// Validate 检查区域非空且完全位于某个显示器或显示器并集内
func (r Region) Validate(displays []image.Rectangle) error {
	if r.Empty() {
		return &CalibrationError{Region: r, Reason: "区域为空"}
	}
	if len(displays) == 0 {
		return &CalibrationError{Region: r, Reason: "未检测到显示器"}
	}

	rect := r.Rect()
	for _, d := range displays {
		if rect.In(d) {
			return nil
		}
	}

	// 跨显示器的区域：逐行检查是否被显示器并集覆盖
	if coveredBy(rect, displays) {
		return nil
	}
	return &CalibrationError{Region: r, Reason: "超出屏幕范围"}
}

// coveredBy 判断矩形是否被多个矩形的并集完全覆盖
func coveredBy(rect image.Rectangle, displays []image.Rectangle) bool {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		x := rect.Min.X
		for x < rect.Max.X {
			advanced := false
			for _, d := range displays {
				if y >= d.Min.Y && y < d.Max.Y && x >= d.Min.X && x < d.Max.X {
					x = d.Max.X
					advanced = true
					break
				}
			}
			if !advanced {
				return false
			}
		}
	}
	return true
}

// UnavailableError 截屏失败
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("截屏不可用 (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("截屏不可用 (%s)", e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is 使 errors.Is(err, ErrCaptureUnavailable) 成立
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCaptureUnavailable
}
