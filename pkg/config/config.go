package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/susalert/susalert/pkg/capture"
)

// ErrInvalidSettings 配置值不合法
var ErrInvalidSettings = errors.New("配置不合法")

// TemplateSetting 模板配置
type TemplateSetting struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Threshold float64 `json:"threshold,omitempty"`
	RGB       bool    `json:"rgb,omitempty"`
}

// Settings 应用配置
type Settings struct {
	// 监控
	PollMs      int             `json:"poll_ms"`
	TimerRegion *capture.Region `json:"timer_region,omitempty"`
	CaptureMs   int             `json:"capture_timeout_ms"`

	// 模板
	Templates     []TemplateSetting `json:"templates"`
	StartTemplate string            `json:"start_template"`
	EndTemplate   string            `json:"end_template,omitempty"`
	TemplateDir   string            `json:"template_dir,omitempty"`

	// 轮换与计时
	RotationFile      string `json:"rotation_file,omitempty"`
	TimeOffsetMs      int    `json:"time_offset_ms"`
	OffsetLimitMs     int    `json:"offset_limit_ms"`
	MaxCorrectionMs   int    `json:"max_correction_ms"`
	ConfirmWindowMs   int    `json:"confirm_window_ms"`
	PresenceTimeoutMs int    `json:"presence_timeout_ms"`
	MaxSessionS       int    `json:"max_session_s"`

	// 提醒
	CountdownAlerts bool `json:"countdown_alerts"`
	NowAlerts       bool `json:"now_alerts"`
	EventSound      bool `json:"event_sound"`
	LeadMs          int  `json:"lead_ms"`
	LateLimitMs     int  `json:"late_limit_ms"`

	// 演示模式
	Demo          bool `json:"demo"`
	DemoAutoClear bool `json:"demo_auto_clear"`
	DemoLatencyMs int  `json:"demo_latency_ms"`

	// 游戏客户端进程名，为空表示不检查
	ClientProcess string `json:"client_process,omitempty"`

	// 输出
	OverlayAddr string `json:"overlay_addr,omitempty"`
	BannerPath  string `json:"banner_path,omitempty"`
	ControlAddr string `json:"control_addr,omitempty"`
	HistoryPath string `json:"history_path,omitempty"`

	// 日志
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file,omitempty"`

	// 窗口位置
	WindowX int `json:"window_x"`
	WindowY int `json:"window_y"`
}

// DefaultSettings 默认配置
func DefaultSettings() *Settings {
	return &Settings{
		PollMs:            120,
		CaptureMs:         500,
		StartTemplate:     "timer",
		OffsetLimitMs:     5000,
		MaxCorrectionMs:   750,
		ConfirmWindowMs:   1500,
		PresenceTimeoutMs: 4000,
		MaxSessionS:       1800,
		CountdownAlerts:   true,
		NowAlerts:         true,
		EventSound:        true,
		LeadMs:            3000,
		LateLimitMs:       2000,
		DemoAutoClear:     true,
		DemoLatencyMs:     0,
		ControlAddr:       "127.0.0.1:50061",
		LogLevel:          "info",
		WindowX:           100,
		WindowY:           100,
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// PollInterval 轮询间隔
func (s *Settings) PollInterval() time.Duration { return ms(s.PollMs) }

// CaptureTimeout 单次截屏超时
func (s *Settings) CaptureTimeout() time.Duration { return ms(s.CaptureMs) }

// TimeOffset 持久化的时间偏移
func (s *Settings) TimeOffset() time.Duration { return ms(s.TimeOffsetMs) }

// OffsetLimit 偏移上限
func (s *Settings) OffsetLimit() time.Duration { return ms(s.OffsetLimitMs) }

// MaxCorrection 单次自动校正上限
func (s *Settings) MaxCorrection() time.Duration { return ms(s.MaxCorrectionMs) }

// ConfirmWindow 模板确认窗口
func (s *Settings) ConfirmWindow() time.Duration { return ms(s.ConfirmWindowMs) }

// PresenceTimeout 计时器消失判定时长
func (s *Settings) PresenceTimeout() time.Duration { return ms(s.PresenceTimeoutMs) }

// MaxSession 会话最长时长
func (s *Settings) MaxSession() time.Duration { return time.Duration(s.MaxSessionS) * time.Second }

// Lead 默认提前量
func (s *Settings) Lead() time.Duration { return ms(s.LeadMs) }

// LateLimit NOW 提醒迟到上限
func (s *Settings) LateLimit() time.Duration { return ms(s.LateLimitMs) }

// DemoLatency 演示模式模拟的检测延迟
func (s *Settings) DemoLatency() time.Duration { return ms(s.DemoLatencyMs) }

// Validate 检查配置范围
func (s *Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidSettings}, args...)...))
		}
	}

	check(s.PollMs >= 10 && s.PollMs <= 5000, "poll_ms 应在 10~5000 之间, 实际 %d", s.PollMs)
	check(s.CaptureMs > 0, "capture_timeout_ms 应大于 0")
	check(s.OffsetLimitMs >= 0, "offset_limit_ms 不能为负")
	check(s.OffsetLimitMs == 0 || abs(s.TimeOffsetMs) <= s.OffsetLimitMs,
		"time_offset_ms %d 超出上限 %d", s.TimeOffsetMs, s.OffsetLimitMs)
	check(s.MaxCorrectionMs >= 0, "max_correction_ms 不能为负")
	check(s.ConfirmWindowMs >= 0, "confirm_window_ms 不能为负")
	check(s.PresenceTimeoutMs >= 0, "presence_timeout_ms 不能为负")
	check(s.MaxSessionS >= 0, "max_session_s 不能为负")
	check(s.LeadMs >= 0, "lead_ms 不能为负")
	check(s.LateLimitMs >= 0, "late_limit_ms 不能为负")
	check(s.StartTemplate != "", "start_template 不能为空")

	seen := make(map[string]bool)
	for i, t := range s.Templates {
		check(t.ID != "" && t.Path != "", "第 %d 个模板缺少 id 或 path", i)
		check(!seen[t.ID], "模板 ID 重复: %s", t.ID)
		check(t.Threshold >= 0 && t.Threshold <= 1, "模板 %s 阈值应在 0~1 之间", t.ID)
		seen[t.ID] = true
	}
	return errors.Join(errs...)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return NewManagerWithDir(filepath.Join(homeDir, ".susalert"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// ensureDir 确保配置目录存在
func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置，文件中缺失的字段保留默认值
func (m *Manager) Load() (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.load()
}

func (m *Manager) load() (*Settings, error) {
	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return DefaultSettings(), fmt.Errorf("解析配置文件失败: %w", err)
	}

	return settings, nil
}

// Save 保存配置
func (m *Manager) Save(settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(settings)
}

func (m *Manager) save(settings *Settings) error {
	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	// 写临时文件后原子替换
	tmp := m.configFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	if err := os.Rename(tmp, m.configFile); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Update 读取、修改并保存配置
func (m *Manager) Update(fn func(*Settings)) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings, err := m.load()
	if err != nil {
		return nil, err
	}
	fn(settings)
	if err := m.save(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveOffset 持久化时间偏移
func (m *Manager) SaveOffset(offset time.Duration) error {
	_, err := m.Update(func(s *Settings) {
		s.TimeOffsetMs = int(offset / time.Millisecond)
	})
	return err
}

// SaveSettings 校验并保存界面提交的配置
// 时间偏移由校正器维护，保留文件中的当前值
func (m *Manager) SaveSettings(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	_, err := m.Update(func(s *Settings) {
		keep := s.TimeOffsetMs
		*s = *settings
		s.TimeOffsetMs = keep
	})
	return err
}

// SaveAlertModes 保存提醒开关
func (m *Manager) SaveAlertModes(countdown, now, sound bool) error {
	_, err := m.Update(func(s *Settings) {
		s.CountdownAlerts, s.NowAlerts, s.EventSound = countdown, now, sound
	})
	return err
}

// SaveRegion 保存标定区域
func (m *Manager) SaveRegion(region capture.Region) error {
	_, err := m.Update(func(s *Settings) {
		s.TimerRegion = &region
	})
	return err
}

// SaveWindowPosition 保存窗口位置
func (m *Manager) SaveWindowPosition(x, y int) error {
	_, err := m.Update(func(s *Settings) {
		s.WindowX, s.WindowY = x, y
	})
	return err
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// ResolvePath 将相对路径解析到配置目录下
func (m *Manager) ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.configDir, path)
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*Settings, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(settings *Settings) error {
	return defaultManager.Save(settings)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
