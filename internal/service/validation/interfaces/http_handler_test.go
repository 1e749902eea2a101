package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"emergency-nexus/internal/pkg/response"
	"emergency-nexus/internal/service/validation/application"
	"emergency-nexus/internal/service/validation/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type stubReader struct {
	capacity int
	err      error
}

func (s stubReader) AvailableCapacity(context.Context, string) (int, error) { return s.capacity, s.err }

func serve(t *testing.T, icu, amb stubReader, body string) *httptest.ResponseRecorder {
	t.Helper()
	svc := application.NewValidationService(icu, amb, noop.NewTracerProvider().Tracer("test"))
	mux := http.NewServeMux()
	NewValidationHandler(svc).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(body)))
	return rec
}

func TestValidationHandler_Decisions(t *testing.T) {
	tests := []struct {
		name     string
		icu, amb stubReader
		body     string
		approved bool
		reason   domain.Reason
	}{
		{
			name: "approve", icu: stubReader{capacity: 80}, amb: stubReader{capacity: 10},
			body: `{"location":"X","requiredIcuBeds":50,"requiredAmbulanceCapacity":8}`, approved: true,
		},
		{
			name: "legacy city field", icu: stubReader{capacity: 80}, amb: stubReader{capacity: 10},
			body: `{"city":"X","requiredIcuBeds":50,"requiredAmbulanceCapacity":8}`, approved: true,
		},
		{
			name: "insufficient", icu: stubReader{capacity: 10}, amb: stubReader{capacity: 10},
			body:   `{"location":"X","requiredIcuBeds":50,"requiredAmbulanceCapacity":5}`,
			reason: domain.ReasonInsufficientResources,
		},
		{
			name: "downstream down", icu: stubReader{err: errors.New("connection refused")}, amb: stubReader{capacity: 10},
			body:   `{"location":"X","requiredIcuBeds":1,"requiredAmbulanceCapacity":1}`,
			reason: domain.ReasonDownstreamUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, tt.icu, tt.amb, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp application.ValidateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.True(t, resp.Success)
			assert.Equal(t, tt.approved, resp.Data.Approved)
			assert.Equal(t, tt.reason, resp.Data.Reason)
			assert.Equal(t, "x", resp.Data.LocationKey)
		})
	}
}

func TestValidationHandler_InputErrors(t *testing.T) {
	for _, body := range []string{
		`{"requiredIcuBeds":1,"requiredAmbulanceCapacity":1}`,
		`{"location":"x","requiredIcuBeds":1}`,
		`{"location":"x","requiredIcuBeds":-1,"requiredAmbulanceCapacity":1}`,
		`{`,
	} {
		rec := serve(t, stubReader{}, stubReader{}, body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)

		var errBody response.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
		assert.Equal(t, "VALIDATION_INPUT", errBody.Error.Kind)
	}
}
