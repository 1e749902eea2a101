package interfaces

import (
	"encoding/json"
	"net/http"
	"strings"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/response"
	"emergency-nexus/internal/service/pool/application"
	"emergency-nexus/internal/service/pool/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PoolHandler 封装了资源池服务的 HTTP 处理器
type PoolHandler struct {
	service *application.PoolService
	prefix  string
	feed    *FeedHub
	limit   func(http.Handler) http.Handler // 只作用于 allocate
}

// NewPoolHandler 创建一个新的 HTTP 处理器实例，prefix 形如 /hospitals
func NewPoolHandler(service *application.PoolService, prefix string, feed *FeedHub, limit func(http.Handler) http.Handler) *PoolHandler {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	return &PoolHandler{service: service, prefix: "/" + strings.Trim(prefix, "/"), feed: feed, limit: limit}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PoolHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET "+h.prefix, h.handleList)
	mux.Handle("POST "+h.prefix+"/allocate", h.limit(http.HandlerFunc(h.handleAllocate)))
	// 归还是补偿路径，不能被限流拒绝，否则容量会永久泄漏
	mux.HandleFunc("POST "+h.prefix+"/release", h.handleRelease)
	if h.feed != nil {
		mux.HandleFunc("GET "+h.prefix+"/feed", h.feed.ServeFeed)
	}
}

func (h *PoolHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location := q.Get("location")
	if location == "" {
		location = q.Get("city")
	}

	status := domain.OccupancyNone
	if raw := q.Get("status"); raw != "" {
		occ, err := domain.ParseOccupancy(raw)
		if err != nil {
			response.Error(w, apperr.New(apperr.KindValidationInput, "pool.List", "%s", err.Error()))
			return
		}
		status = occ
	}

	providers, err := h.service.List(r.Context(), location, status)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, application.ListResponse{
		Success:       true,
		Count:         len(providers),
		Data:          providers,
		TotalCapacity: domain.TotalCapacity(domain.FilterCandidates(providers)),
	})
}

func (h *PoolHandler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req application.AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "pool.Allocate", "Invalid request body"))
		return
	}
	if req.LocationKey() == "" || req.Amount == nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "pool.Allocate", "Missing required fields: location, amount"))
		return
	}

	result, err := h.service.Allocate(r.Context(), req.LocationKey(), *req.Amount)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, application.AllocateResponse{Success: true, Data: result})
}

func (h *PoolHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var reversal domain.Reversal
	if err := json.NewDecoder(r.Body).Decode(&reversal); err != nil {
		response.Error(w, apperr.New(apperr.KindValidationInput, "pool.Release", "Invalid request body"))
		return
	}

	applied, err := h.service.Release(r.Context(), reversal)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, http.StatusOK, application.ReleaseResponse{Success: true, Applied: applied})
}
