// Package ws 通过 WebSocket 把覆盖层内容推送到浏览器（可作为直播软件的浏览器源）
package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/susalert/susalert/internal/logger"
)

// Message 推送给浏览器的消息
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub 维护已连接的客户端并广播消息
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu   sync.RWMutex
	last []byte // 最近一次状态，新客户端连接时先发送
	log  *logger.Logger
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.Named("overlay"),
	}
}

// Run 处理注册和广播直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			if h.last != nil {
				select {
				case c.send <- h.last:
				default:
				}
			}
			h.mu.Unlock()
			h.log.Debug("覆盖层客户端连接: %s", c.conn.RemoteAddr())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.log.Debug("覆盖层客户端断开: %s", c.conn.RemoteAddr())
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// 发送缓冲已满，视为断开
					delete(h.clients, c)
					close(c.send)
					h.log.Warn("覆盖层客户端 %s 处理过慢, 已断开", c.conn.RemoteAddr())
				}
			}
			h.mu.Unlock()
		}
	}
}

// add 注册客户端，Hub 已停止时返回 false
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast 广播消息，type 为 state 时会保存为最新状态
// 广播队列满时丢弃
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload})
	if err != nil {
		h.log.Error("序列化覆盖层消息失败: %v", err)
		return
	}
	if msgType == TypeState {
		h.mu.Lock()
		h.last = data
		h.mu.Unlock()
	}
	select {
	case h.broadcast <- data:
	default:
	}
}
