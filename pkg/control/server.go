package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/monitor"
)

// DefaultAddr 默认监听地址，只接受本机连接
const DefaultAddr = "127.0.0.1:50061"

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, monitor.ErrCommandQueueFull) {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	return status.Error(codes.FailedPrecondition, err.Error())
}

func invalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}

// Server 控制服务
type Server struct {
	grpc *grpc.Server
	log  *logger.Logger
}

// NewServer 创建服务并注册 Service
func NewServer(mon Monitor) *Server {
	s := &Server{log: logger.Named("control")}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.logUnary))
	RegisterControlServer(s.grpc, NewService(mon))
	return s
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warn("%s 失败: %v", info.FullMethod, err)
	} else {
		s.log.Debug("%s 完成 (%v)", info.FullMethod, time.Since(start))
	}
	return resp, err
}

// ListenAndServe 监听 addr 并处理请求，直到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("监听控制端口失败: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在 ln 上处理请求，直到 ctx 结束
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("控制服务监听 %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("控制服务异常退出: %w", err)
	}
}
