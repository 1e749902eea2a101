package interfaces

import (
	"encoding/json"
	"net/http"
	"strings"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/pkg/response"
	"emergency-nexus/internal/service/orchestrator/application"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EmergencyRequest 是 /emergency 的请求体，location 也可以用旧字段名 city 传入
type EmergencyRequest struct {
	Location                  string `json:"location"`
	City                      string `json:"city,omitempty"`
	RequiredICUBeds           *int   `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity *int   `json:"requiredAmbulanceCapacity"`
}

func (r *EmergencyRequest) LocationKey() string {
	if strings.TrimSpace(r.Location) != "" {
		return r.Location
	}
	return r.City
}

// OrchestratorHandler 封装了编排服务的 HTTP 处理器
type OrchestratorHandler struct {
	coordinator *application.Coordinator
	limit       func(http.Handler) http.Handler
}

func NewOrchestratorHandler(coordinator *application.Coordinator, limit func(http.Handler) http.Handler) *OrchestratorHandler {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	return &OrchestratorHandler{coordinator: coordinator, limit: limit}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *OrchestratorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("POST /emergency", h.limit(http.HandlerFunc(h.handleEmergency)))
}

// handleEmergency 成功返回 201，被拒绝或失败返回 400，响应体始终是结构化的 Outcome
func (h *OrchestratorHandler) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req EmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "orchestrator.Emergency", "Invalid request body"))
		return
	}
	if req.LocationKey() == "" || req.RequiredICUBeds == nil || req.RequiredAmbulanceCapacity == nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "orchestrator.Emergency",
			"Missing required fields: location, requiredIcuBeds, requiredAmbulanceCapacity"))
		return
	}

	outcome, err := h.coordinator.Orchestrate(r.Context(), req.LocationKey(), *req.RequiredICUBeds, *req.RequiredAmbulanceCapacity)
	if err != nil {
		response.Error(w, err)
		return
	}

	if !outcome.Success {
		logger.Ctx(r.Context()).Warn().Str("saga_id", outcome.SagaID).Str("reason", string(outcome.Reason)).Msg("Emergency orchestration rejected")
		response.JSON(w, http.StatusBadRequest, outcome)
		return
	}
	logger.Ctx(r.Context()).Info().Str("saga_id", outcome.SagaID).Msg("Emergency orchestration completed successfully")
	response.JSON(w, http.StatusCreated, outcome)
}
