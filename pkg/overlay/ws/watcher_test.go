package ws

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/susalert/susalert/pkg/alert"
	"github.com/susalert/susalert/pkg/monitor"
)

func TestBuildURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"127.0.0.1:8787", "ws://127.0.0.1:8787/ws"},
		{":8787", "ws://127.0.0.1:8787/ws"},
		{"http://host:8787", "ws://host:8787/ws"},
		{"https://example.com/", "wss://example.com/ws"},
		{"ws://host:1", "ws://host:1/ws"},
		{"ws://host:1/custom", "ws://host:1/custom"},
	}
	for _, tt := range tests {
		if got := BuildURL(tt.in); got != tt.want {
			t.Errorf("BuildURL(%q) = %q, 期望 %q", tt.in, got, tt.want)
		}
	}
}

func TestWatcherReceives(t *testing.T) {
	hub, srv := startServer(t)

	var (
		mu       sync.Mutex
		statuses []WatchStatus
	)
	w := NewWatcher(srv.URL, WithReconnectDelays(), WithStatusCallback(func(s WatchStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Received, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(m Received) { got <- m })
	}()

	waitClients(t, hub, 1)
	forward(hub, monitor.Update{Kind: monitor.UpdateAlert, Alert: &alert.Event{Label: "Stun", Kind: alert.KindNow, MechanicID: "stun"}})

	select {
	case m := <-got:
		if m.Type != TypeAlert {
			t.Fatalf("消息类型 = %s", m.Type)
		}
		var a AlertPayload
		if err := json.Unmarshal(m.Payload, &a); err != nil || a.Text != "Stun NOW!" {
			t.Errorf("提醒内容错误: %+v, %v", a, err)
		}
	case <-ctx.Done():
		t.Fatal("超时未收到消息")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("取消后应返回 nil, 实际 %v", err)
	}
	if w.Status() != WatchDisconnected {
		t.Errorf("结束后状态 = %s", w.Status())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) < 2 || statuses[0] != WatchConnecting || statuses[1] != WatchConnected {
		t.Errorf("状态序列错误: %v", statuses)
	}
}

func TestWatcherGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	w := NewWatcher(addr, WithReconnectDelays(10*time.Millisecond))
	err = w.Run(context.Background(), func(Received) {})
	if err == nil || !strings.Contains(err.Error(), addr) {
		t.Errorf("重连用完应返回错误, 实际 %v", err)
	}
}
