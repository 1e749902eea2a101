// Package ratelimit 提供按客户端 IP 的令牌桶限流中间件。
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/response"

	"golang.org/x/time/rate"
)

// Limiter 为每个客户端维护一个令牌桶
type Limiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	idleTTL  time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Option func(*Limiter)

// WithIdleTTL 设置空闲客户端的令牌桶多久之后被回收
func WithIdleTTL(d time.Duration) Option {
	return func(l *Limiter) {
		l.idleTTL = d
	}
}

// New 创建限流器，rps <= 0 时不限流
func New(rps float64, burst int, opts ...Option) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		idleTTL:  3 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow 判断 key 对应的客户端当前是否允许通过
func (l *Limiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	// 顺带清理长时间不活跃的客户端
	for k, other := range l.visitors {
		if now.Sub(other.lastSeen) > l.idleTTL {
			delete(l.visitors, k)
		}
	}
	return v.limiter.AllowN(now, 1)
}

// Middleware 超出限额的请求直接返回 429，错误类型标记为可重试的 DOWNSTREAM_UNAVAILABLE
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			response.JSON(w, http.StatusTooManyRequests, response.ErrorBody{Error: response.ErrorDetail{
				Message:    "rate limit exceeded",
				StatusCode: http.StatusTooManyRequests,
				Kind:       apperr.KindDownstreamUnavailable.String(),
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
