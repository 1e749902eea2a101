// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/nacos"
	"emergency-nexus/internal/pkg/tracing"

	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// AppCtx 是注册路由时可用的公共依赖
type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未启用服务发现时为 nil
	Config *Config
	Tracer trace.Tracer

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// AddCloser 注册一个在关停时执行的清理函数，按注册的逆序执行。
func (a *AppCtx) AddCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 组装服务自己的依赖并注册 HTTP 路由，返回错误则启动失败
	RegisterHandlers func(appCtx *AppCtx) error
}

// Init 加载配置并初始化全局 logger，必须在 StartService 之前调用。
func Init(serviceName string, port int) *Config {
	cfg, err := LoadConfig(serviceName, port)
	if err != nil {
		logger.Init(serviceName, "info")
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)
	return cfg
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	port := cfg.App.Port
	if port == 0 {
		port = info.Port
	}

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	appCtx := &AppCtx{
		Mux:    http.NewServeMux(),
		Config: cfg,
		Tracer: otel.Tracer(info.ServiceName),
	}

	// 2. 服务注册（可选）
	var ip string
	if cfg.Infra.Nacos.Enabled {
		namingClient, err := nacos.NewNacosClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = GetOutboundIP()
		if err != nil {
			zlog.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, port); err != nil {
			zlog.Fatal().Err(err).Msg("failed to register service with nacos")
		}
		appCtx.Nacos = namingClient
	}

	// 3. 组装业务依赖并注册路由
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			zlog.Fatal().Err(err).Msgf("failed to wire %s", info.ServiceName)
		}
	}

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           Instrument(info.ServiceName, appCtx.Mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Info().Msgf("%s listening on :%d", info.ServiceName, port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a. 先停止接收新请求
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Error shutting down http server")
	}

	// b. 业务组件按注册的逆序关闭（消费者、连接池等）
	for i := len(appCtx.closers) - 1; i >= 0; i-- {
		c := appCtx.closers[i]
		if err := c.fn(ctx); err != nil {
			zlog.Error().Err(err).Str("component", c.name).Msg("Error closing component")
		}
	}

	// c. 从 Nacos 注销服务
	if appCtx.Nacos != nil {
		if err := appCtx.Nacos.DeregisterServiceInstance(info.ServiceName, ip, port); err != nil {
			zlog.Error().Err(err).Msg("Error deregistering from Nacos")
		}
		appCtx.Nacos.Close()
	}

	// d. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("Error shutting down tracer provider")
	}

	zlog.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// Instrument 为每个请求提取上游的 trace 上下文、开启服务端 span，
// 并把带 trace_id 的 logger 放入 context。
func Instrument(serviceName string, next http.Handler) http.Handler {
	tracer := otel.Tracer(serviceName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)

		l := zlog.With().Str("trace_id", tracing.GetTraceIDFromContext(ctx)).Logger()
		ctx = logger.WithContext(ctx, l)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOutboundIP 返回本机对外通信使用的 IP，用于服务注册
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
