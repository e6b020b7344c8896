package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPChat/global/config"
	"PPChat/logger"
	"PPChat/service/rpc"
	"PPChat/tools/ids"
	"PPChat/tools/safe"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

type options struct {
	Config      string `short:"c" long:"config" description:"YAML config file (falls back to PPCHAT_CONFIG)"`
	HealthCheck bool   `long:"healthcheck" description:"probe the gRPC health endpoint and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logger.Error("load config", zap.Error(err))
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logger.Sync()

	if opts.HealthCheck {
		os.Exit(healthCheck(cfg))
	}
	if err := run(cfg); err != nil {
		logger.Error("ppchat exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func healthCheck(cfg *config.Config) int {
	addr := cfg.GRPC.Addr
	if host, port, err := net.SplitHostPort(addr); err == nil && host == "" {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rpc.CheckRemote(ctx, addr); err != nil {
		logger.Error("health check failed", zap.String("addr", addr), zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ids.SetNodeID(cfg.NodeID)
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.bus.Start(ctx); err != nil {
		return err
	}
	safe.Go("outbox-relay", func() { app.relay.Run(ctx) })

	errCh := make(chan error, 2)
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		safe.Go("grpc-health", func() { errCh <- app.health.Serve(ctx, lis) })
		logger.Info("grpc health listening", zap.String("addr", cfg.GRPC.Addr))
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: app.engine, ReadHeaderTimeout: 10 * time.Second}
	safe.Go("http", func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})
	logger.Info("ppchat listening", zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Driver), zap.String("events", cfg.Events.Driver))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	app.gateway.Shutdown()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if cfg.GRPC.Addr != "" {
		app.health.Stop()
	}
	return nil
}
