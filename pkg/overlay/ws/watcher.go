package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/susalert/susalert/internal/logger"
)

// WatchStatus 远程覆盖层连接状态
type WatchStatus string

const (
	WatchDisconnected WatchStatus = "disconnected"
	WatchConnecting   WatchStatus = "connecting"
	WatchConnected    WatchStatus = "connected"
	WatchReconnecting WatchStatus = "reconnecting"
)

const maxWatchMessageSize = 1 << 20

// Received 从远程覆盖层收到的消息，Payload 保持原始 JSON
type Received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DefaultReconnectDelays 重连间隔序列
var DefaultReconnectDelays = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

// Watcher 连接另一个实例的覆盖层服务并接收推送，断线后按间隔序列重连
type Watcher struct {
	url    string
	delays []time.Duration
	dialer websocket.Dialer

	mu       sync.RWMutex
	status   WatchStatus
	onStatus func(WatchStatus)

	log *logger.Logger
}

// WatcherOption Watcher 选项
type WatcherOption func(*Watcher)

// WithReconnectDelays 设置重连间隔，为空时断线即退出
func WithReconnectDelays(delays ...time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.delays = delays
	}
}

// WithStatusCallback 状态变化回调
func WithStatusCallback(fn func(WatchStatus)) WatcherOption {
	return func(w *Watcher) {
		w.onStatus = fn
	}
}

// NewWatcher 创建 Watcher
func NewWatcher(addr string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		url:    BuildURL(addr),
		delays: DefaultReconnectDelays,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		status: WatchDisconnected,
		log:    logger.Named("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// BuildURL 把地址转换为 WebSocket URL
//   - 127.0.0.1:8787 → ws://127.0.0.1:8787/ws
//   - http://host:8787 → ws://host:8787/ws
//   - https://host → wss://host/ws
//   - ws://host/custom 保持不变
func BuildURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
		u, err := url.Parse(addr)
		if err != nil {
			return addr
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
		return u.String()
	case strings.HasPrefix(addr, "http://"):
		return "ws://" + strings.TrimSuffix(strings.TrimPrefix(addr, "http://"), "/") + "/ws"
	case strings.HasPrefix(addr, "https://"):
		return "wss://" + strings.TrimSuffix(strings.TrimPrefix(addr, "https://"), "/") + "/ws"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "ws://" + addr + "/ws"
}

// URL 连接地址
func (w *Watcher) URL() string {
	return w.url
}

// Status 当前状态
func (w *Watcher) Status() WatchStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Watcher) setStatus(s WatchStatus) {
	w.mu.Lock()
	changed := w.status != s
	w.status = s
	fn := w.onStatus
	w.mu.Unlock()

	if changed && fn != nil {
		fn(s)
	}
}

// Run 接收消息并交给 fn，直到 ctx 结束或重连次数用完
// 每次连接成功后重连序列从头开始
func (w *Watcher) Run(ctx context.Context, fn func(Received)) error {
	defer w.setStatus(WatchDisconnected)

	attempt := 0
	for {
		w.setStatus(WatchConnecting)
		err := w.session(ctx, fn, func() { attempt = 0 })
		if ctx.Err() != nil {
			return nil
		}
		if attempt >= len(w.delays) {
			return fmt.Errorf("连接 %s 失败: %w", w.url, err)
		}

		delay := w.delays[attempt]
		attempt++
		w.setStatus(WatchReconnecting)
		w.log.Warn("连接中断: %v, %v 后第 %d/%d 次重连", err, delay, attempt, len(w.delays))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session 单次连接，返回断开原因
func (w *Watcher) session(ctx context.Context, fn func(Received), connected func()) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.setStatus(WatchConnected)
	w.log.Info("已连接 %s", w.url)
	connected()

	// ctx 结束时关闭连接以解除 ReadMessage 阻塞
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		conn.Close()
	})
	defer stop()

	conn.SetReadLimit(maxWatchMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("服务端关闭连接")
			}
			return err
		}

		var msg Received
		if err := json.Unmarshal(data, &msg); err != nil {
			w.log.Warn("解析消息失败: %v", err)
			continue
		}
		fn(msg)
	}
}
