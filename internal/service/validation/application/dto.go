package application

import (
	"strings"

	"emergency-nexus/internal/service/validation/domain"
)

// ValidateRequest 是 /validate 的请求体，location 也可以用旧字段名 city 传入
type ValidateRequest struct {
	Location                  string `json:"location"`
	City                      string `json:"city,omitempty"`
	RequiredICUBeds           *int   `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity *int   `json:"requiredAmbulanceCapacity"`
}

func (r *ValidateRequest) LocationKey() string {
	if strings.TrimSpace(r.Location) != "" {
		return r.Location
	}
	return r.City
}

// ValidateResponse 是 /validate 的响应体
type ValidateResponse struct {
	Success bool          `json:"success"`
	Data    domain.Result `json:"data"`
}
