package ws

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/monitor"
	"github.com/susalert/susalert/pkg/overlay"
)

// 消息类型
const (
	TypeState  = "state"
	TypeAlert  = "alert"
	TypeCancel = "cancel"
)

//go:embed index.html
var indexHTML []byte

// AlertPayload 提醒消息
type AlertPayload struct {
	Text       string     `json:"text"`
	Kind       alert.Kind `json:"kind"`
	MechanicID string     `json:"mechanic_id"`
	DueAt      time.Time  `json:"due_at"`
}

// Server 覆盖层 HTTP 服务
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewServer 创建服务
func NewServer(hub *Hub) *Server {
	s := &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 直播软件的浏览器源没有固定 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.serveIndex)
	s.mux.HandleFunc("/ws", s.serveWs)
	return s
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.log.Warn("WebSocket 升级失败: %v", err)
		return
	}

	c := &Client{hub: s.hub, conn: conn, send: make(chan []byte, sendBuffer)}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// ListenAndServe 监听 addr 直到 ctx 取消
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听覆盖层地址失败: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上提供服务直到 ctx 取消
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.hub.log.Info("覆盖层地址: http://%s/", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("覆盖层服务异常: %w", err)
	}
	return nil
}

// Pump 把监控通知转换为覆盖层消息，直到 ctx 取消或通道关闭
func Pump(ctx context.Context, hub *Hub, updates <-chan monitor.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			forward(hub, u)
		}
	}
}

func forward(hub *Hub, u monitor.Update) {
	switch u.Kind {
	case monitor.UpdateState:
		if u.Snapshot != nil {
			hub.Broadcast(TypeState, overlay.NewView(*u.Snapshot))
		}
	case monitor.UpdateAlert:
		if u.Alert != nil {
			hub.Broadcast(TypeAlert, AlertPayload{
				Text:       u.Alert.Text(),
				Kind:       u.Alert.Kind,
				MechanicID: u.Alert.MechanicID,
				DueAt:      u.Alert.DueAt,
			})
		}
	case monitor.UpdateCancel:
		hub.Broadcast(TypeCancel, nil)
	}
}
