package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/pkg/lock"
	"emergency-nexus/internal/service/pool/application"
	"emergency-nexus/internal/service/pool/domain"
	"emergency-nexus/internal/service/pool/infrastructure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newClient() *httpclient.Client {
	return httpclient.NewClient(noop.NewTracerProvider().Tracer("test"))
}

func TestAmbulanceReader_FiltersFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ambulances", r.URL.Path)
		assert.Equal(t, "FREE", r.URL.Query().Get("status"))
		assert.Equal(t, "pune", r.URL.Query().Get("location"))
		_, _ = w.Write([]byte(`{"success":true,"count":1,"data":[{"availableCapacity":4}],"totalCapacity":4}`))
	}))
	defer srv.Close()

	n, err := NewAmbulanceReader(newClient(), srv.URL).AvailableCapacity(context.Background(), "pune")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestHospitalReader_SumsDataWithoutTotal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"success":true,"data":[{"availableCapacity":30},{"availableCapacity":50}]}`))
	}))
	defer srv.Close()

	n, err := NewHospitalReader(newClient(), srv.URL).AvailableCapacity(context.Background(), "pune")
	require.NoError(t, err)
	assert.Equal(t, 80, n)
}

func TestPoolHTTPReader_Unavailable(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, message: "Hospital Service unavailable"},
		{name: "success false", status: http.StatusOK, body: `{"success":false}`, message: "downstream reported failure"},
		{name: "malformed", status: http.StatusOK, body: `not json`, message: "malformed response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHospitalReader(newClient(), srv.URL).AvailableCapacity(context.Background(), "pune")
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindDownstreamUnavailable))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestPoolLocalReader(t *testing.T) {
	svc := application.NewPoolService(domain.KindICUBed, infrastructure.NewMemoryProviderRepository(),
		lock.NewLocalLocker(), noop.NewTracerProvider().Tracer("test"))
	p, err := domain.NewProvider("h1", "General", domain.KindICUBed, "pune", 12)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), p))

	n, err := NewPoolLocalReader(svc).AvailableCapacity(context.Background(), "Pune")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}
