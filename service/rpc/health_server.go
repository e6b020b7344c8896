package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"PPChat/logger"
	"PPChat/tools/errs"
	"PPChat/tools/safe"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName 对外注册的健康检查服务名；空串代表整个进程
const ServiceName = "ppchat.Chat"

// Probe 依赖探测，返回 nil 表示可用
type Probe func(ctx context.Context) error

// HealthServer gRPC 健康检查；所有 probe 通过时 SERVING
type HealthServer struct {
	srv      *grpc.Server
	health   *health.Server
	probes   map[string]Probe
	interval time.Duration

	mu      sync.Mutex
	serving bool
}

func NewHealthServer(interval time.Duration, probes map[string]Probe) *HealthServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	hs := health.NewServer()
	srv := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	h := &HealthServer{srv: srv, health: hs, probes: probes, interval: interval}
	h.set(false)
	return h
}

// Check 执行一轮探测并更新状态
func (h *HealthServer) Check(ctx context.Context) bool {
	ok := true
	for name, p := range h.probes {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := p(pctx)
		cancel()
		if err != nil {
			ok = false
			logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
		}
	}
	h.set(ok)
	return ok
}

func (h *HealthServer) set(ok bool) {
	h.mu.Lock()
	changed := h.serving != ok
	h.serving = ok
	h.mu.Unlock()

	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if ok {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(ServiceName, st)
	if changed {
		logger.Info("health status changed", zap.String("status", st.String()))
	}
}

// Serve 阻塞直到 lis 关闭；探测循环随 ctx 退出
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	h.Check(ctx)
	safe.Go("health-probe", func() {
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				h.Check(ctx)
			}
		}
	})
	if err := h.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return errs.WrapMsg(err, "grpc serve", "addr", lis.Addr().String())
	}
	return nil
}

// Stop 先把状态切到 NOT_SERVING，再优雅停止
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.srv.GracefulStop()
}
