package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/susalert/susalert/internal/app"
	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/config"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/overlay"
	"github.com/susalert/susalert/pkg/permissions"
)

// 前端事件名
const (
	EventState  = "susalert:state"
	EventAlert  = "susalert:alert"
	EventCancel = "susalert:cancel"
)

var errNotReady = errors.New("监控尚未初始化")

// App 绑定到前端的服务
type App struct {
	configMgr *config.Manager
	emit      func(name string, data any)

	mu     sync.Mutex
	inst   *app.App
	cancel context.CancelFunc
	done   chan struct{}
}

// NewApp 创建服务，emit 用于向前端发送事件
func NewApp(mgr *config.Manager, emit func(name string, data any)) *App {
	return &App{configMgr: mgr, emit: emit}
}

// ServiceStartup 应用启动时组装并运行监控
func (a *App) ServiceStartup(ctx context.Context, _ application.ServiceOptions) error {
	return a.startup(ctx)
}

// ServiceShutdown 应用关闭时停止监控
func (a *App) ServiceShutdown() error {
	a.shutdown()
	return nil
}

func (a *App) startup(ctx context.Context) error {
	inst, err := app.New(a.configMgr, app.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	a.mu.Lock()
	a.inst = inst
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		defer inst.Close()
		if err := inst.Run(ctx, a.forward); err != nil {
			logger.Error("监控异常退出: %v", err)
		}
	}()
	return nil
}

func (a *App) shutdown() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// forward 把监控通知转发给前端
func (a *App) forward(ctx context.Context) error {
	mon := a.monitor()
	updates, cancel := mon.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			switch u.Kind {
			case monitor.UpdateState:
				if u.Snapshot != nil {
					a.emit(EventState, overlay.NewView(*u.Snapshot))
				}
			case monitor.UpdateAlert:
				if u.Alert != nil {
					a.emit(EventAlert, u.Alert.Text())
				}
			case monitor.UpdateCancel:
				a.emit(EventCancel, nil)
			}
		}
	}
}

func (a *App) instance() *app.App {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inst
}

func (a *App) monitor() *monitor.Monitor {
	inst := a.instance()
	if inst == nil {
		return nil
	}
	return inst.Monitor
}

func (a *App) call(fn func(m *monitor.Monitor) error) error {
	m := a.monitor()
	if m == nil {
		return errNotReady
	}
	return fn(m)
}

// ==================== 监控控制 ====================

// Start 开始监控
func (a *App) Start() error {
	return a.call((*monitor.Monitor).Start)
}

// Stop 停止监控
func (a *App) Stop() error {
	return a.call((*monitor.Monitor).Stop)
}

// Cleared 确认清除
func (a *App) Cleared() error {
	return a.call((*monitor.Monitor).Clear)
}

// Nudge 调整偏移（毫秒）
func (a *App) Nudge(ms int) error {
	return a.call(func(m *monitor.Monitor) error {
		return m.Nudge(time.Duration(ms) * time.Millisecond)
	})
}

// SetDemo 开关演示模式
func (a *App) SetDemo(enabled bool) error {
	return a.call(func(m *monitor.Monitor) error {
		return m.SetDemo(enabled)
	})
}

// ResetSession 结束当前会话
func (a *App) ResetSession() error {
	return a.call((*monitor.Monitor).ResetSession)
}

// ResetOffset 偏移归零
func (a *App) ResetOffset() error {
	return a.call((*monitor.Monitor).ResetOffset)
}

// GetState 获取当前显示内容
func (a *App) GetState() overlay.View {
	m := a.monitor()
	if m == nil {
		return overlay.View{Status: string(monitor.StatusStopped)}
	}
	return overlay.NewView(m.Snapshot())
}

// ==================== 配置管理 ====================

// LoadSettings 加载配置
func (a *App) LoadSettings() *config.Settings {
	s, err := a.configMgr.Load()
	if err != nil {
		logger.Warn("加载配置失败: %v", err)
	}
	return s
}

// SaveSettings 保存配置，重启后生效；时间偏移保留当前值
func (a *App) SaveSettings(s config.Settings) error {
	return a.configMgr.SaveSettings(&s)
}

// GetAlertModes 当前的提醒开关
func (a *App) GetAlertModes() app.AlertModes {
	inst := a.instance()
	if inst == nil {
		s := a.LoadSettings()
		return app.AlertModes{Countdown: s.CountdownAlerts, Now: s.NowAlerts, Sound: s.EventSound}
	}
	return inst.AlertModes()
}

// SetAlertModes 切换倒计时提醒、到点提醒和声音，立即生效
func (a *App) SetAlertModes(m app.AlertModes) error {
	inst := a.instance()
	if inst == nil {
		return errNotReady
	}
	return inst.SetAlertModes(m)
}

// SaveWindowPosition 保存窗口位置
func (a *App) SaveWindowPosition(x, y int) error {
	return a.configMgr.SaveWindowPosition(x, y)
}

// ==================== 日志 ====================

// GetLogs 获取最近的日志
func (a *App) GetLogs(limit int) []logger.Entry {
	return logger.Recent(limit)
}

// ==================== 权限管理 (macOS) ====================

// PermissionInfo 权限信息
type PermissionInfo struct {
	ScreenRecording bool   `json:"screen_recording"`
	AllGranted      bool   `json:"all_granted"`
	Message         string `json:"message"`
}

// CheckPermissions 检查权限状态
func (a *App) CheckPermissions() PermissionInfo {
	status := permissions.CheckPermissions()
	return PermissionInfo{
		ScreenRecording: status.ScreenRecording,
		AllGranted:      status.AllGranted,
		Message:         permissions.GetPermissionInstructions(status),
	}
}

// OpenScreenRecordingSettings 打开屏幕录制设置
func (a *App) OpenScreenRecordingSettings() {
	permissions.OpenScreenRecordingSettings()
}
