//go:build windows

package capture

import (
	"math"
	"sync"

	"github.com/go-vgo/robotgo"
	"golang.org/x/sys/windows"

	"github.com/susalert/susalert/internal/logger"
)

// Windows 上 robotgo.GetScreenSize 可能返回逻辑尺寸，而 CaptureImg 始终是物理像素。
// 启动时对比两者得到 coordScale = 截图像素 / robotgo 坐标，标定区域以物理像素保存，
// 截取前除以 coordScale 转为 robotgo 坐标。

var (
	coordinateScaleMu sync.Mutex
	cachedScaleX      float64
	cachedScaleY      float64
	coordsDetected    bool
	debugLogOnce      sync.Once
)

var (
	user32              = windows.NewLazySystemDLL("user32.dll")
	gdi32               = windows.NewLazySystemDLL("gdi32.dll")
	procGetDpiForWindow = user32.NewProc("GetDpiForWindow")
	procGetForeground   = user32.NewProc("GetForegroundWindow")
	procGetDesktop      = user32.NewProc("GetDesktopWindow")
	procGetDC           = user32.NewProc("GetDC")
	procReleaseDC       = user32.NewProc("ReleaseDC")
	procGetDeviceCaps   = gdi32.NewProc("GetDeviceCaps")

	dpiOnce        sync.Once
	cachedDPIScale float64
)

const logpixelsX = 88

// GetDPIScale 获取 Windows DPI 缩放比例 (1.0 = 100%)
func GetDPIScale() float64 {
	dpiOnce.Do(func() {
		cachedDPIScale = detectDPIScale()
	})
	return cachedDPIScale
}

func detectDPIScale() float64 {
	var dpi int

	// Windows 10 1607+
	if procGetDpiForWindow.Find() == nil {
		hwnd, _, _ := procGetForeground.Call()
		if hwnd == 0 {
			hwnd, _, _ = procGetDesktop.Call()
		}
		if hwnd != 0 {
			if d, _, _ := procGetDpiForWindow.Call(hwnd); d > 0 {
				dpi = int(d)
			}
		}
	}

	// 回退到 GDI
	if dpi == 0 && procGetDC.Find() == nil && procGetDeviceCaps.Find() == nil {
		dc, _, _ := procGetDC.Call(0)
		if dc != 0 {
			if d, _, _ := procGetDeviceCaps.Call(dc, uintptr(logpixelsX)); d > 0 {
				dpi = int(d)
			}
			procReleaseDC.Call(0, dc)
		}
	}

	if dpi <= 0 {
		dpi = 96
	}
	scale := float64(dpi) / 96.0
	if scale < 0.5 || scale > 4.0 {
		scale = 1.0
	}
	return scale
}

// GetPhysicalScreenSize 获取物理屏幕尺寸（与截图分辨率一致）
func GetPhysicalScreenSize() (width, height int) {
	w, h := robotgo.GetScreenSize()
	scaleX, scaleY := getCoordinateScale()
	return ScaleInt(w, scaleX), ScaleInt(h, scaleY)
}

func getCoordinateScale() (float64, float64) {
	coordinateScaleMu.Lock()
	defer coordinateScaleMu.Unlock()

	if coordsDetected {
		return cachedScaleX, cachedScaleY
	}

	cachedScaleX, cachedScaleY = detectCoordinateScale()
	coordsDetected = true

	debugLogOnce.Do(func() {
		rw, rh := robotgo.GetScreenSize()
		logger.Named("capture").Debug("DPI=%.0f%% robotgo_screen=%dx%d coordScale=%.3f",
			GetDPIScale()*100, rw, rh, cachedScaleX)
	})

	return cachedScaleX, cachedScaleY
}

func detectCoordinateScale() (float64, float64) {
	reportedW, reportedH := robotgo.GetScreenSize()
	if reportedW <= 0 || reportedH <= 0 {
		return 1.0, 1.0
	}

	img, err := robotgo.CaptureImg()
	if err != nil || img == nil {
		s := GetDPIScale()
		return s, s
	}

	captureW := img.Bounds().Dx()
	captureH := img.Bounds().Dy()
	if captureW <= 0 || captureH <= 0 {
		return 1.0, 1.0
	}

	return normalizeScale(float64(captureW) / float64(reportedW)),
		normalizeScale(float64(captureH) / float64(reportedH))
}

func normalizeScale(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1.0
	}
	if v < 0.5 || v > 4.0 {
		return 1.0
	}
	if math.Abs(v-1.0) < 0.05 {
		return 1.0
	}
	return v
}

// NormalizeRegionForCapture 物理像素区域 -> robotgo 截图区域
func NormalizeRegionForCapture(x, y, width, height int) (int, int, int, int) {
	scaleX, scaleY := getCoordinateScale()
	if scaleX <= 0 {
		scaleX = 1.0
	}
	if scaleY <= 0 {
		scaleY = 1.0
	}

	nx := ScaleInt(x, 1.0/scaleX)
	ny := ScaleInt(y, 1.0/scaleY)
	nw := ScaleInt(width, 1.0/scaleX)
	nh := ScaleInt(height, 1.0/scaleY)

	if width > 0 && nw < 1 {
		nw = 1
	}
	if height > 0 && nh < 1 {
		nh = 1
	}
	return nx, ny, nw, nh
}

// NormalizeRegionForScreen robotgo 区域 -> 物理像素区域
func NormalizeRegionForScreen(x, y, width, height int) (int, int, int, int) {
	scaleX, scaleY := getCoordinateScale()
	return ScaleInt(x, scaleX), ScaleInt(y, scaleY), ScaleInt(width, scaleX), ScaleInt(height, scaleY)
}
