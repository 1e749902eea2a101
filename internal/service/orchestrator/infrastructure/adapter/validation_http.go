package adapter

import (
	"context"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	validationdomain "emergency-nexus/internal/service/validation/domain"

	"github.com/pkg/errors"
)

type validateRequest struct {
	Location                  string `json:"location"`
	RequiredICUBeds           int    `json:"requiredIcuBeds"`
	RequiredAmbulanceCapacity int    `json:"requiredAmbulanceCapacity"`
}

type validateResponse struct {
	Success bool                     `json:"success"`
	Data    *validationdomain.Result `json:"data"`
}

// ValidationHTTPAdapter 实现了 port.Validator 接口
type ValidationHTTPAdapter struct {
	client *httpclient.Client
	target string
}

func NewValidationHTTPAdapter(client *httpclient.Client, target string) *ValidationHTTPAdapter {
	return &ValidationHTTPAdapter{client: client, target: target}
}

func (a *ValidationHTTPAdapter) Validate(ctx context.Context, location string, icuBeds, ambulanceCapacity int) (validationdomain.Result, error) {
	const op = "orchestrator.validate"
	var resp validateResponse
	err := a.client.PostJSON(ctx, a.target, "/validate", validateRequest{
		Location:                  location,
		RequiredICUBeds:           icuBeds,
		RequiredAmbulanceCapacity: ambulanceCapacity,
	}, &resp)
	if err != nil {
		return validationdomain.Result{}, translate(op, "Validation Service", err)
	}
	if !resp.Success || resp.Data == nil {
		return validationdomain.Result{}, apperr.Wrap(apperr.KindDownstreamUnavailable, op,
			errors.New("validation response has no data"), "Validation Service unavailable")
	}
	return *resp.Data, nil
}
