// Package process 检查游戏客户端是否在运行
package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// FindProcess 按名称查找进程 (不区分大小写，支持部分匹配)
func FindProcess(ctx context.Context, name string) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []ProcessInfo

	for _, proc := range procs {
		procName, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(procName), name) {
			exe, _ := proc.ExeWithContext(ctx)
			matches = append(matches, ProcessInfo{
				PID:  int(proc.Pid),
				Name: procName,
				Path: exe,
			})
		}
	}

	return matches, nil
}

// IsProcessRunning 检查进程是否正在运行
func IsProcessRunning(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	if err != nil {
		return false
	}
	return running
}

// DefaultCacheTTL 客户端检测结果的缓存时间
const DefaultCacheTTL = 2 * time.Second

// FindFunc 查找进程的函数
type FindFunc func(ctx context.Context, name string) ([]ProcessInfo, error)

// ClientWatch 检测游戏客户端是否在运行
// 遍历进程列表较慢，结果缓存 TTL 时长，上次找到的 PID 仍存活时直接复用
type ClientWatch struct {
	name string
	ttl  time.Duration
	find FindFunc
	now  func() time.Time

	mu      sync.Mutex
	checked time.Time
	running bool
	pid     int
}

// NewClientWatch 创建客户端检测器
func NewClientWatch(name string, ttl time.Duration) *ClientWatch {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ClientWatch{name: name, ttl: ttl, find: FindProcess, now: time.Now}
}

// WithFinder 替换进程查找函数
func (p *ClientWatch) WithFinder(find FindFunc) *ClientWatch {
	p.find = find
	return p
}

// Name 进程名
func (p *ClientWatch) Name() string {
	return p.name
}

// Running 客户端是否在运行，查找失败时视为在运行
func (p *ClientWatch) Running(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.checked.IsZero() && now.Sub(p.checked) < p.ttl {
		return p.running
	}
	p.checked = now

	if p.pid > 0 && IsProcessRunning(p.pid) {
		p.running = true
		return true
	}

	matches, err := p.find(ctx, p.name)
	if err != nil {
		p.running = true
		p.pid = 0
		return true
	}
	p.running = len(matches) > 0
	p.pid = 0
	if p.running {
		p.pid = matches[0].PID
	}
	return p.running
}
