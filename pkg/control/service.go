// Package control 通过本地 gRPC 服务暴露监控操作，供命令行和其他进程控制正在运行的实例
//
// 服务没有 .proto 生成代码，消息全部使用 protobuf 内置类型，服务描述手写。
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/susalert/susalert/pkg/monitor"
)

const (
	serviceName = "susalert.control.v1.Control"

	methodStart        = "/" + serviceName + "/Start"
	methodStop         = "/" + serviceName + "/Stop"
	methodCleared      = "/" + serviceName + "/Cleared"
	methodNudge        = "/" + serviceName + "/Nudge"
	methodSetDemo      = "/" + serviceName + "/SetDemo"
	methodResetSession = "/" + serviceName + "/ResetSession"
	methodResetOffset  = "/" + serviceName + "/ResetOffset"
	methodGetState     = "/" + serviceName + "/GetState"
	methodWatch        = "/" + serviceName + "/Watch"
)

// Monitor 服务需要的监控操作
type Monitor interface {
	Start() error
	Stop() error
	Clear() error
	Nudge(delta time.Duration) error
	SetDemo(enabled bool) error
	ResetSession() error
	ResetOffset() error
	Snapshot() monitor.Snapshot
	Subscribe() (<-chan monitor.Update, func())
}

// ControlServer 服务端接口
type ControlServer interface {
	Start(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	Stop(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	Cleared(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	Nudge(ctx context.Context, in *durationpb.Duration) (*emptypb.Empty, error)
	SetDemo(ctx context.Context, in *wrapperspb.BoolValue) (*emptypb.Empty, error)
	ResetSession(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	ResetOffset(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
	// GetState 返回 JSON 编码的 monitor.Snapshot
	GetState(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BytesValue, error)
	// Watch 持续推送 JSON 编码的 monitor.Update
	Watch(in *emptypb.Empty, stream grpc.ServerStream) error
}

func unaryHandler[In any](method string, call func(context.Context, *In) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(In)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			r, ok := req.(*In)
			if !ok {
				return nil, fmt.Errorf("请求类型错误: %T", req)
			}
			return call(ctx, r)
		}
		return interceptor(ctx, in, info, handler)
	}
}

func unary[In, Out any](fn func(context.Context, *In) (*Out, error)) func(context.Context, *In) (any, error) {
	return func(ctx context.Context, in *In) (any, error) {
		return fn(ctx, in)
	}
}

// RegisterControlServer 注册服务
func RegisterControlServer(server grpc.ServiceRegistrar, impl ControlServer) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*ControlServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Start", Handler: unaryHandler(methodStart, unary(impl.Start))},
			{MethodName: "Stop", Handler: unaryHandler(methodStop, unary(impl.Stop))},
			{MethodName: "Cleared", Handler: unaryHandler(methodCleared, unary(impl.Cleared))},
			{MethodName: "Nudge", Handler: unaryHandler(methodNudge, unary(impl.Nudge))},
			{MethodName: "SetDemo", Handler: unaryHandler(methodSetDemo, unary(impl.SetDemo))},
			{MethodName: "ResetSession", Handler: unaryHandler(methodResetSession, unary(impl.ResetSession))},
			{MethodName: "ResetOffset", Handler: unaryHandler(methodResetOffset, unary(impl.ResetOffset))},
			{MethodName: "GetState", Handler: unaryHandler(methodGetState, unary(impl.GetState))},
		},
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Watch",
				ServerStreams: true,
				Handler: func(srv any, stream grpc.ServerStream) error {
					in := new(emptypb.Empty)
					if err := stream.RecvMsg(in); err != nil {
						return err
					}
					return impl.Watch(in, stream)
				},
			},
		},
		Metadata: "susalert/control.proto",
	}, impl)
}

// Service ControlServer 的实现
type Service struct {
	mon Monitor
}

// NewService 创建服务
func NewService(mon Monitor) *Service {
	return &Service{mon: mon}
}

func empty(err error) (*emptypb.Empty, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Service) Start(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return empty(s.mon.Start())
}

func (s *Service) Stop(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return empty(s.mon.Stop())
}

func (s *Service) Cleared(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return empty(s.mon.Clear())
}

func (s *Service) Nudge(_ context.Context, in *durationpb.Duration) (*emptypb.Empty, error) {
	if err := in.CheckValid(); err != nil {
		return nil, invalidArgument(err)
	}
	return empty(s.mon.Nudge(in.AsDuration()))
}

func (s *Service) SetDemo(_ context.Context, in *wrapperspb.BoolValue) (*emptypb.Empty, error) {
	return empty(s.mon.SetDemo(in.GetValue()))
}

func (s *Service) ResetSession(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return empty(s.mon.ResetSession())
}

func (s *Service) ResetOffset(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return empty(s.mon.ResetOffset())
}

func (s *Service) GetState(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	data, err := json.Marshal(s.mon.Snapshot())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(data), nil
}

// Watch 先发送当前状态，再转发后续通知，直到客户端断开
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStream) error {
	updates, cancel := s.mon.Subscribe()
	defer cancel()

	snap := s.mon.Snapshot()
	if err := sendUpdate(stream, monitor.Update{Kind: monitor.UpdateState, Snapshot: &snap}); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if err := sendUpdate(stream, u); err != nil {
				return err
			}
		}
	}
}

func sendUpdate(stream grpc.ServerStream, u monitor.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return toStatus(err)
	}
	return stream.SendMsg(wrapperspb.Bytes(data))
}
