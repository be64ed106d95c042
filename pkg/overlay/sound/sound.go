// Package sound 在机制到达和确认清除时播放提示音
package sound

import (
	"context"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/monitor"
)

// Cue 提示音类型
type Cue int

const (
	// CueNow 机制到达
	CueNow Cue = iota
	// CueCleared 确认清除
	CueCleared
)

// Player 播放提示音
type Player interface {
	Play(cue Cue) error
}

// Sink 订阅监控通知并播放提示音
type Sink struct {
	player  Player
	enabled func() bool
	log     *logger.Logger
}

// NewSink 创建提示音输出；enabled 为 nil 时始终播放
func NewSink(player Player, enabled func() bool) *Sink {
	return &Sink{player: player, enabled: enabled, log: logger.Named("sound")}
}

// Run 处理通知直到 ctx 取消或通道关闭
func (s *Sink) Run(ctx context.Context, updates <-chan monitor.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.Handle(u)
		}
	}
}

// Handle 处理一条通知
func (s *Sink) Handle(u monitor.Update) {
	cue, ok := cueFor(u)
	if !ok || (s.enabled != nil && !s.enabled()) {
		return
	}
	if err := s.player.Play(cue); err != nil {
		s.log.Warn("播放提示音失败: %v", err)
	}
}

func cueFor(u monitor.Update) (Cue, bool) {
	switch u.Kind {
	case monitor.UpdateAlert:
		if u.Alert != nil && u.Alert.Kind == alert.KindNow {
			return CueNow, true
		}
	case monitor.UpdateSession:
		if u.Transition != nil && u.Transition.Kind == encounter.TransitionCleared {
			return CueCleared, true
		}
	}
	return 0, false
}
