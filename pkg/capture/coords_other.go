//go:build !windows

package capture

import (
	"github.com/go-vgo/robotgo"
)

// GetDPIScale 非 Windows 平台返回 1.0
func GetDPIScale() float64 {
	return 1.0
}

// GetPhysicalScreenSize 获取物理屏幕尺寸
// 非 Windows 平台等同于 robotgo.GetScreenSize()（macOS Retina 由 robotgo 自行处理）
func GetPhysicalScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}

// NormalizeRegionForCapture 非 Windows 平台无需缩放
func NormalizeRegionForCapture(x, y, width, height int) (int, int, int, int) {
	return x, y, width, height
}

// NormalizeRegionForScreen 非 Windows 平台无需缩放
func NormalizeRegionForScreen(x, y, width, height int) (int, int, int, int) {
	return x, y, width, height
}
