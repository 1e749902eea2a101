package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"emergency-nexus/internal/pkg/lock"
	"emergency-nexus/internal/pkg/mq"
	"emergency-nexus/internal/pkg/response"
	"emergency-nexus/internal/service/orchestrator/application"
	"emergency-nexus/internal/service/orchestrator/domain"
	"emergency-nexus/internal/service/orchestrator/infrastructure/adapter"
	poolapp "emergency-nexus/internal/service/pool/application"
	pooldomain "emergency-nexus/internal/service/pool/domain"
	poolinfra "emergency-nexus/internal/service/pool/infrastructure"
	validationapp "emergency-nexus/internal/service/validation/application"
	validationadapter "emergency-nexus/internal/service/validation/infrastructure/adapter"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

var tracer = noop.NewTracerProvider().Tracer("test")

func newPool(t *testing.T, kind pooldomain.Kind, capacity int) *poolapp.PoolService {
	t.Helper()
	svc := poolapp.NewPoolService(kind, poolinfra.NewMemoryProviderRepository(), lock.NewLocalLocker(), tracer)
	p, err := pooldomain.NewProvider(string(kind)+"-1", "provider", kind, "pune", capacity)
	require.NoError(t, err)
	require.NoError(t, svc.Register(context.Background(), p))
	return svc
}

func newCoordinator(t *testing.T, icuCapacity, ambulanceCapacity int) (*application.Coordinator, *poolapp.PoolService) {
	t.Helper()
	icu := newPool(t, pooldomain.KindICUBed, icuCapacity)
	amb := newPool(t, pooldomain.KindAmbulance, ambulanceCapacity)
	validator := validationapp.NewValidationService(
		validationadapter.NewPoolLocalReader(icu), validationadapter.NewPoolLocalReader(amb), tracer)
	return application.NewCoordinator(validator, adapter.NewPoolLocalAdapter(icu), adapter.NewPoolLocalAdapter(amb), tracer), icu
}

func post(t *testing.T, h *OrchestratorHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/emergency", bytes.NewBufferString(body)))
	return rec
}

func TestOrchestratorHandler_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		success bool
		state   domain.State
	}{
		{"committed", `{"location":"pune","requiredIcuBeds":5,"requiredAmbulanceCapacity":2}`, http.StatusCreated, true, domain.StateCommitted},
		{"legacy city", `{"city":"Pune","requiredIcuBeds":5,"requiredAmbulanceCapacity":2}`, http.StatusCreated, true, domain.StateCommitted},
		{"rejected", `{"location":"pune","requiredIcuBeds":500,"requiredAmbulanceCapacity":2}`, http.StatusBadRequest, false, domain.StateRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator, _ := newCoordinator(t, 50, 10)
			rec := post(t, NewOrchestratorHandler(coordinator, nil), tt.body)
			require.Equal(t, tt.status, rec.Code)

			var outcome domain.Outcome
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
			assert.Equal(t, tt.success, outcome.Success)
			assert.Equal(t, tt.state, outcome.State)
			assert.NotEmpty(t, outcome.SagaID)
		})
	}
}

func TestOrchestratorHandler_InputErrors(t *testing.T) {
	coordinator, _ := newCoordinator(t, 50, 10)
	h := NewOrchestratorHandler(coordinator, nil)
	for _, body := range []string{
		`{"requiredIcuBeds":1,"requiredAmbulanceCapacity":1}`,
		`{"location":"pune","requiredAmbulanceCapacity":1}`,
		`{"location":"pune","requiredIcuBeds":-1,"requiredAmbulanceCapacity":1}`,
		`not json`,
	} {
		rec := post(t, h, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		var errBody response.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody), body)
		assert.Equal(t, "VALIDATION_INPUT", errBody.Error.Kind)
	}
}

type chanReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed []kafka.Message
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-r.in:
		return m, nil
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *chanReader) Close() error { return nil }

func (r *chanReader) committedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestCompensationConsumer_ReleasesAndForwardsFailures(t *testing.T) {
	coordinator, icu := newCoordinator(t, 20, 10)
	allocation, err := icu.Allocate(context.Background(), "pune", 8)
	require.NoError(t, err)

	good, err := json.Marshal(domain.CompensationTask{SagaID: "s1", Reversal: allocation.Reversal()})
	require.NoError(t, err)

	reader := &chanReader{in: make(chan kafka.Message, 2)}
	retry, dlt := &recordingWriter{}, &recordingWriter{}
	consumer := NewCompensationConsumer(reader, coordinator, mq.NewFailureHandler(retry, dlt, 3))
	consumer.Start(context.Background())
	defer func() { require.NoError(t, consumer.Stop(context.Background())) }()

	reader.in <- kafka.Message{Topic: "saga.compensation.retry", Value: good}
	reader.in <- kafka.Message{Topic: "saga.compensation.retry", Value: []byte("{")}

	require.Eventually(t, func() bool { return reader.committedCount() == 2 }, time.Second, 10*time.Millisecond)
	total, err := icu.TotalAvailable(context.Background(), "pune")
	require.NoError(t, err)
	assert.Equal(t, 20, total)
	assert.Equal(t, 1, retry.count())
	assert.Zero(t, dlt.count())
}

func TestDeadLetterConsumer_CommitsEverything(t *testing.T) {
	reader := &chanReader{in: make(chan kafka.Message, 1)}
	consumer := NewDeadLetterConsumer(reader)
	consumer.Start(context.Background())
	defer func() { require.NoError(t, consumer.Stop(context.Background())) }()

	reader.in <- kafka.Message{Key: []byte("a1"), Value: []byte(`{}`), Headers: []kafka.Header{{Key: mq.HeaderRetryCount, Value: []byte("3")}}}
	require.Eventually(t, func() bool { return reader.committedCount() == 1 }, time.Second, 10*time.Millisecond)
}
