package validation

import (
	"net/http"
	"testing"

	"emergency-nexus/internal/pkg/bootstrap"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestWire_InvalidAdmissionRule(t *testing.T) {
	cfg := bootstrap.DefaultConfig("validation-service", 3003)
	cfg.Validation.AdmissionRule = "request.requiredIcuBeds <"
	appCtx := &bootstrap.AppCtx{Mux: http.NewServeMux(), Config: cfg, Tracer: noop.NewTracerProvider().Tracer("test")}

	assert.Error(t, Wire(appCtx))
}

func TestWire_Defaults(t *testing.T) {
	cfg := bootstrap.DefaultConfig("validation-service", 3003)
	cfg.Validation.AdmissionRule = "request.requiredIcuBeds <= 500"
	appCtx := &bootstrap.AppCtx{Mux: http.NewServeMux(), Config: cfg, Tracer: noop.NewTracerProvider().Tracer("test")}

	assert.NoError(t, Wire(appCtx))
}
