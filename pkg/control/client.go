package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/susalert/susalert/pkg/monitor"
)

var watchDesc = grpc.StreamDesc{StreamName: "Watch", ServerStreams: true}

// Client 控制客户端
type Client struct {
	conn *grpc.ClientConn
}

// Dial 连接控制服务
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("连接控制服务失败: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in any) error {
	return c.conn.Invoke(ctx, method, in, &emptypb.Empty{})
}

// Start 开始监控
func (c *Client) Start(ctx context.Context) error {
	return c.invoke(ctx, methodStart, &emptypb.Empty{})
}

// Stop 停止监控
func (c *Client) Stop(ctx context.Context) error {
	return c.invoke(ctx, methodStop, &emptypb.Empty{})
}

// Cleared 确认清除
func (c *Client) Cleared(ctx context.Context) error {
	return c.invoke(ctx, methodCleared, &emptypb.Empty{})
}

// Nudge 手动调整偏移
func (c *Client) Nudge(ctx context.Context, delta time.Duration) error {
	return c.invoke(ctx, methodNudge, durationpb.New(delta))
}

// SetDemo 开关演示模式
func (c *Client) SetDemo(ctx context.Context, enabled bool) error {
	return c.invoke(ctx, methodSetDemo, wrapperspb.Bool(enabled))
}

// ResetSession 结束当前会话
func (c *Client) ResetSession(ctx context.Context) error {
	return c.invoke(ctx, methodResetSession, &emptypb.Empty{})
}

// ResetOffset 偏移归零
func (c *Client) ResetOffset(ctx context.Context) error {
	return c.invoke(ctx, methodResetOffset, &emptypb.Empty{})
}

// GetState 读取当前状态
func (c *Client) GetState(ctx context.Context) (monitor.Snapshot, error) {
	var snap monitor.Snapshot
	out := &wrapperspb.BytesValue{}
	if err := c.conn.Invoke(ctx, methodGetState, &emptypb.Empty{}, out); err != nil {
		return snap, err
	}
	if err := json.Unmarshal(out.GetValue(), &snap); err != nil {
		return snap, fmt.Errorf("解析状态失败: %w", err)
	}
	return snap, nil
}

// Watch 接收通知直到 ctx 结束、服务端关闭或 fn 返回错误
func (c *Client) Watch(ctx context.Context, fn func(monitor.Update) error) error {
	stream, err := c.conn.NewStream(ctx, &watchDesc, methodWatch)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := &wrapperspb.BytesValue{}
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var u monitor.Update
		if err := json.Unmarshal(msg.GetValue(), &u); err != nil {
			return fmt.Errorf("解析通知失败: %w", err)
		}
		if err := fn(u); err != nil {
			return err
		}
	}
}
