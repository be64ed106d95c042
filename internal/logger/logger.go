// Package logger 提供统一的日志工具
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level 日志级别
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) Level {
	switch s {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	default:
		return INFO
	}
}

// Entry 最近日志条目
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// recentCap 内存中保留的最近日志条数
const recentCap = 200

// sink 所有子 logger 共享的输出端
type sink struct {
	mu       sync.Mutex
	level    Level
	enabled  bool
	console  bool
	file     bool
	filePath string
	logger   *log.Logger
	fileOut  *os.File

	recent []Entry
	next   int
	full   bool
}

// Logger 日志记录器
type Logger struct {
	out  *sink
	name string
}

// 全局默认 logger
var defaultLogger = New()

// New 创建新的 Logger 实例
func New() *Logger {
	return &Logger{
		out: &sink{
			level:   INFO,
			enabled: true,
			console: true,
			logger:  log.New(os.Stdout, "", 0),
			recent:  make([]Entry, recentCap),
		},
	}
}

// NewWithWriter 创建输出到指定 writer 的 Logger，主要用于测试
func NewWithWriter(w io.Writer) *Logger {
	l := New()
	l.out.logger.SetOutput(w)
	return l
}

// Default 获取默认 logger
func Default() *Logger {
	return defaultLogger
}

// Named 返回带组件名的子 logger，与父 logger 共享级别和输出
func (l *Logger) Named(component string) *Logger {
	name := component
	if l.name != "" {
		name = l.name + "." + component
	}
	return &Logger{out: l.out, name: name}
}

// Named 使用默认 logger 创建子 logger
func Named(component string) *Logger {
	return defaultLogger.Named(component)
}

// SetLevel 设置日志级别
func (l *Logger) SetLevel(level Level) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// GetLevel 获取日志级别
func (l *Logger) GetLevel() Level {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// SetEnabled 设置是否启用日志
func (l *Logger) SetEnabled(enabled bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.enabled = enabled
}

// SetConsole 设置是否输出到控制台
func (l *Logger) SetConsole(enabled bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.console = enabled
	l.out.updateOutput()
}

// SetFile 设置是否输出到文件
func (l *Logger) SetFile(enabled bool, path string) error {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	// 关闭旧文件
	if s.fileOut != nil {
		s.fileOut.Close()
		s.fileOut = nil
	}

	s.file = enabled
	s.filePath = path

	if enabled && path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("无法打开日志文件: %w", err)
		}
		s.fileOut = f
	}

	s.updateOutput()
	return nil
}

// Configure 按配置设置级别和日志文件，file 为空时只输出到控制台
func (l *Logger) Configure(level, file string) error {
	l.SetLevel(ParseLevel(level))
	if file == "" {
		return l.SetFile(false, "")
	}
	return l.SetFile(true, file)
}

func (s *sink) updateOutput() {
	var writers []io.Writer

	if s.console {
		writers = append(writers, os.Stdout)
	}
	if s.file && s.fileOut != nil {
		writers = append(writers, s.fileOut)
	}

	if len(writers) == 0 {
		s.logger.SetOutput(io.Discard)
	} else if len(writers) == 1 {
		s.logger.SetOutput(writers[0])
	} else {
		s.logger.SetOutput(io.MultiWriter(writers...))
	}
}

// log 内部日志方法
func (l *Logger) log(level Level, format string, args ...interface{}) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled || level < s.level {
		return
	}

	now := time.Now()
	msg := fmt.Sprintf(format, args...)
	if l.name != "" {
		s.logger.Printf("%s | %-5s | %-8s | %s", now.Format("15:04:05"), level.String(), l.name, msg)
	} else {
		s.logger.Printf("%s | %-5s | %s", now.Format("15:04:05"), level.String(), msg)
	}

	s.recent[s.next] = Entry{Time: now, Level: level.String(), Component: l.name, Message: msg}
	s.next = (s.next + 1) % len(s.recent)
	if s.next == 0 {
		s.full = true
	}
}

// Debug 输出 DEBUG 级别日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DEBUG, format, args...)
}

// Info 输出 INFO 级别日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(INFO, format, args...)
}

// Warn 输出 WARN 级别日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WARN, format, args...)
}

// Error 输出 ERROR 级别日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ERROR, format, args...)
}

// LogEvent 记录带分类的事件日志
func (l *Logger) LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	status := "OK"
	if !ok {
		status = "NG"
	}

	if ok {
		l.Info("%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
	} else {
		l.Error("%-4s | %s | %6.1fms | %s", category, status, elapsedMs, detail)
	}
}

// Recent 返回最近的日志条目（从旧到新），limit <= 0 表示全部
func (l *Logger) Recent(limit int) []Entry {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	if s.full {
		out = append(out, s.recent[s.next:]...)
	}
	out = append(out, s.recent[:s.next]...)

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Close 关闭 logger，释放资源
func (l *Logger) Close() error {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fileOut != nil {
		err := s.fileOut.Close()
		s.fileOut = nil
		return err
	}
	return nil
}

// 包级别便捷函数
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func LogEvent(category string, ok bool, elapsedMs float64, detail string) {
	defaultLogger.LogEvent(category, ok, elapsedMs, detail)
}
func Recent(limit int) []Entry { return defaultLogger.Recent(limit) }
