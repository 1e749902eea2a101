package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/pkg/lock"
	"emergency-nexus/internal/service/orchestrator/domain"
	poolapp "emergency-nexus/internal/service/pool/application"
	pooldomain "emergency-nexus/internal/service/pool/domain"
	poolinfra "emergency-nexus/internal/service/pool/infrastructure"
	poolhttp "emergency-nexus/internal/service/pool/interfaces"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newClient() *httpclient.Client {
	return httpclient.NewClient(noop.NewTracerProvider().Tracer("test"))
}

func newHospitalServer(t *testing.T, capacity int) (*httptest.Server, *poolapp.PoolService) {
	t.Helper()
	svc := poolapp.NewPoolService(pooldomain.KindICUBed, poolinfra.NewMemoryProviderRepository(),
		lock.NewLocalLocker(), noop.NewTracerProvider().Tracer("test"))
	p, err := pooldomain.NewProvider("h1", "General", pooldomain.KindICUBed, "pune", capacity)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), p))

	mux := http.NewServeMux()
	poolhttp.NewPoolHandler(svc, "hospitals", nil, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestPoolHTTPAdapter_AllocateAndRelease(t *testing.T) {
	srv, svc := newHospitalServer(t, 10)
	a := NewHospitalAdapter(newClient(), srv.URL)

	result, err := a.Allocate(context.Background(), "pune", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalAllocated())
	assert.Equal(t, pooldomain.KindICUBed, result.Kind)

	require.NoError(t, a.Release(context.Background(), result.Reversal()))
	total, err := svc.TotalAvailable(context.Background(), "pune")
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestPoolHTTPAdapter_KeepsErrorKinds(t *testing.T) {
	srv, _ := newHospitalServer(t, 10)
	a := NewHospitalAdapter(newClient(), srv.URL)

	_, err := a.Allocate(context.Background(), "pune", 11)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientCapacity))
	assert.Contains(t, err.Error(), "Required: 11, Available: 10")

	_, err = a.Allocate(context.Background(), "mumbai", 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPoolHTTPAdapter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := NewAmbulanceAdapter(newClient(), srv.URL).Allocate(context.Background(), "pune", 1)
	assert.True(t, apperr.Is(err, apperr.KindDownstreamUnavailable))
	assert.Contains(t, err.Error(), "Ambulance Service unavailable")
}

func TestValidationHTTPAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/validate", r.URL.Path)
		assert.Equal(t, 3, body.RequiredICUBeds)
		_, _ = w.Write([]byte(`{"success":true,"data":{"approved":false,"location":"pune","reason":"INSUFFICIENT_RESOURCES","message":"Insufficient ICU beds (need 3, have 1)"}}`))
	}))
	defer srv.Close()

	result, err := NewValidationHTTPAdapter(newClient(), srv.URL).Validate(context.Background(), "pune", 3, 0)
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.Equal(t, "INSUFFICIENT_RESOURCES", string(result.Reason))
}

func TestValidationHTTPAdapter_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	_, err := NewValidationHTTPAdapter(newClient(), srv.URL).Validate(context.Background(), "pune", 1, 1)
	assert.True(t, apperr.Is(err, apperr.KindDownstreamUnavailable))
}

type captureWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaAdapters(t *testing.T) {
	events := &captureWriter{}
	require.NoError(t, NewSagaEventKafkaAdapter(events).PublishSagaEvent(context.Background(),
		domain.SagaEvent{SagaID: "s1", State: domain.StateCommitted}))
	require.Len(t, events.msgs, 1)
	assert.Equal(t, "s1", string(events.msgs[0].Key))
	var event domain.SagaEvent
	require.NoError(t, json.Unmarshal(events.msgs[0].Value, &event))
	assert.Equal(t, domain.StateCommitted, event.State)

	retries := &captureWriter{}
	task := domain.CompensationTask{SagaID: "s1", Reversal: pooldomain.Reversal{AllocationID: "a1", Kind: pooldomain.KindAmbulance}}
	require.NoError(t, NewCompensationKafkaAdapter(retries).ScheduleCompensation(context.Background(), task))
	require.Len(t, retries.msgs, 1)
	assert.Equal(t, "a1", string(retries.msgs[0].Key))
	var got domain.CompensationTask
	require.NoError(t, json.Unmarshal(retries.msgs[0].Value, &got))
	assert.Equal(t, task, got)
}
