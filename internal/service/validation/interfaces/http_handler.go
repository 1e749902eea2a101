package interfaces

import (
	"encoding/json"
	"net/http"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/response"
	"emergency-nexus/internal/service/validation/application"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ValidationHandler 封装了校验服务的 HTTP 处理器
type ValidationHandler struct {
	service *application.ValidationService
}

func NewValidationHandler(service *application.ValidationService) *ValidationHandler {
	return &ValidationHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *ValidationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /validate", h.handleValidate)
}

// handleValidate 除了非法输入之外总是返回 200，是否批准看 data.approved
func (h *ValidationHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req application.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "validation.Validate", "Invalid request body"))
		return
	}
	if req.LocationKey() == "" || req.RequiredICUBeds == nil || req.RequiredAmbulanceCapacity == nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "validation.Validate",
			"Missing required fields: location, requiredIcuBeds, requiredAmbulanceCapacity"))
		return
	}

	result, err := h.service.Validate(r.Context(), req.LocationKey(), *req.RequiredICUBeds, *req.RequiredAmbulanceCapacity)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, application.ValidateResponse{Success: true, Data: result})
}
