//go:build !windows

package sound

import (
	"io"
	"os"
	"strings"
)

// SystemPlayer 向终端输出响铃字符
type SystemPlayer struct {
	out io.Writer
}

// NewSystemPlayer 创建终端响铃播放器
func NewSystemPlayer() *SystemPlayer {
	return &SystemPlayer{out: os.Stderr}
}

// Play 播放提示音，清除确认响两次
func (p *SystemPlayer) Play(cue Cue) error {
	n := 1
	if cue == CueCleared {
		n = 2
	}
	_, err := io.WriteString(p.out, strings.Repeat("\a", n))
	return err
}
