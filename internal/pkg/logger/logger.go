// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog，所有日志都带上服务名。
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zlog.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
	zerolog.DefaultContextLogger = &zlog.Logger
}

// Ctx 返回 context 中的 logger，并附加当前 span 的 trace_id / span_id。
// context 中没有 logger 时回退到全局 logger（未 Init 时为禁用状态）。
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	enriched := l.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &enriched
}

// WithContext 把 logger 存入 context，供后续的 Ctx 调用取出。
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
