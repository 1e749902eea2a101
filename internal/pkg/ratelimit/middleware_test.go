package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"emergency-nexus/internal/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenReject(t *testing.T) {
	l := New(1, 2)
	fixed := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return fixed }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	// 不同客户端互不影响
	assert.True(t, l.Allow("10.0.0.2"))

	fixed = fixed.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("x"))
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	l := New(1, 1)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/hospitals/allocate", nil)
		req.RemoteAddr = "192.168.1.9:5555"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	// 限流是暂时性的拒绝，不能被当成调用方的输入错误
	var body response.ErrorBody
	require.NoError(t, json.NewDecoder(last.Body).Decode(&body))
	assert.Equal(t, "DOWNSTREAM_UNAVAILABLE", body.Error.Kind)
	assert.Equal(t, http.StatusTooManyRequests, body.Error.StatusCode)
}
