package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-vgo/robotgo"
)

// ErrWindowNotFound 找不到游戏窗口
var ErrWindowNotFound = errors.New("找不到窗口")

// Window 游戏客户端窗口
type Window struct {
	PID   int    `json:"pid"`
	Title string `json:"title"`
	// Client 客户区（不含标题栏和边框），物理像素
	Client Region `json:"client"`
}

// FindWindow 按进程名查找第一个有标题的窗口
func FindWindow(name string) (Window, error) {
	pids, err := robotgo.FindIds(name)
	if err != nil {
		return Window{}, fmt.Errorf("查找进程 %s 失败: %w", name, err)
	}
	for _, pid := range pids {
		title := robotgo.GetTitle(pid)
		if strings.TrimSpace(title) == "" {
			continue
		}
		x, y, w, h := robotgo.GetClient(pid)
		x, y, w, h = NormalizeRegionForScreen(x, y, w, h)
		if w <= 0 || h <= 0 {
			continue
		}
		return Window{PID: pid, Title: title, Client: Region{X: x, Y: y, W: w, H: h}}, nil
	}
	return Window{}, fmt.Errorf("%w: %s", ErrWindowNotFound, name)
}

// Absolute 把相对窗口客户区左上角的区域换算为屏幕坐标
func (w Window) Absolute(r Region) Region {
	return Region{X: w.Client.X + r.X, Y: w.Client.Y + r.Y, W: r.W, H: r.H}
}

// Relative 把屏幕坐标换算为相对窗口客户区的坐标
func (w Window) Relative(r Region) Region {
	return Region{X: r.X - w.Client.X, Y: r.Y - w.Client.Y, W: r.W, H: r.H}
}

// Contains 区域是否完全位于客户区内
func (w Window) Contains(r Region) bool {
	return r.Rect().In(w.Client.Rect())
}
