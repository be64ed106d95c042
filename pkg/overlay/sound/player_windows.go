//go:build windows

package sound

import (
	"fmt"

	"golang.org/x/sys/windows"
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	procMessageBeep = user32.NewProc("MessageBeep")
)

const (
	mbIconAsterisk    = 0x00000040
	mbIconExclamation = 0x00000030
)

// SystemPlayer 使用系统提示音
type SystemPlayer struct{}

// NewSystemPlayer 创建系统提示音播放器
func NewSystemPlayer() *SystemPlayer {
	return &SystemPlayer{}
}

// Play 播放提示音
func (SystemPlayer) Play(cue Cue) error {
	if err := procMessageBeep.Find(); err != nil {
		return fmt.Errorf("加载 MessageBeep 失败: %w", err)
	}
	kind := uintptr(mbIconExclamation)
	if cue == CueCleared {
		kind = mbIconAsterisk
	}
	if ret, _, err := procMessageBeep.Call(kind); ret == 0 {
		return fmt.Errorf("MessageBeep 失败: %w", err)
	}
	return nil
}
