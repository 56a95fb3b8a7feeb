// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// Listener 不为空时忽略 Port，测试中用来绑定随机端口
	Listener net.Listener

	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由
	RegisterHandlers func(mux *http.ServeMux)

	// Workers 是与 HTTP 服务一起运行的后台任务，ctx 取消时应返回。
	// 任何一个返回错误都会触发整个服务关停。
	Workers []func(ctx context.Context) error

	// Cleanups 在所有任务退出后按注册的逆序执行
	Cleanups []func(ctx context.Context) error

	ShutdownTimeout time.Duration
}

// StartService 封装了通用的启动和优雅关停逻辑，阻塞直到收到 SIGINT / SIGTERM。
func StartService(info AppInfo) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, info)
}

// Run 启动 HTTP 服务与后台任务，ctx 取消后依次关停。
func Run(ctx context.Context, info AppInfo) error {
	timeout := info.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	listener := info.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", ":"+strconv.Itoa(info.Port))
		if err != nil {
			return errors.Wrapf(err, "could not listen on :%d", info.Port)
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(mux)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("service", info.ServiceName).Str("addr", listener.Addr().String()).Msg("✅ HTTP server listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	for _, worker := range info.Workers {
		worker := worker
		g.Go(func() error { return worker(gctx) })
	}

	// 任一任务失败或收到退出信号时关停 HTTP 服务
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("service", info.ServiceName).Msg("Shutting down service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown http server")
		}
		log.Info().Msg("HTTP server shut down.")
		return nil
	})

	runErr := g.Wait()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(info.Cleanups) - 1; i >= 0; i-- {
		if err := info.Cleanups[i](cleanupCtx); err != nil {
			log.Error().Err(err).Msg("cleanup failed")
			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("service", info.ServiceName).Msg("service stopped with error")
		return runErr
	}
	log.Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
	return nil
}
