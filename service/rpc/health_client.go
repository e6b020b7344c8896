package rpc

import (
	"context"

	"PPChat/tools/errs"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// CheckRemote 对 target 做一次健康检查；容器 healthcheck 走这里
func CheckRemote(ctx context.Context, target string, opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return errs.WrapMsg(err, "grpc dial", "target", target)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return errs.WrapMsg(err, "health check", "target", target)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return errs.New("service not serving", "status", resp.GetStatus().String())
	}
	return nil
}
