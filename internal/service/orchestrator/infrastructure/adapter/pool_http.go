package adapter

import (
	"context"
	"strings"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	pooldomain "emergency-nexus/internal/service/pool/domain"

	"github.com/pkg/errors"
)

type allocateRequest struct {
	Location string `json:"location"`
	Amount   int    `json:"amount"`
}

type allocateResponse struct {
	Success bool                         `json:"success"`
	Data    *pooldomain.AllocationResult `json:"data"`
}

type releaseResponse struct {
	Success bool `json:"success"`
	Applied bool `json:"applied"`
}

// PoolHTTPAdapter 实现了 port.PoolReserver 接口，调用资源池服务的 allocate/release 接口
type PoolHTTPAdapter struct {
	client  *httpclient.Client
	target  string
	prefix  string
	display string
}

// NewHospitalAdapter 创建医院服务的适配器
func NewHospitalAdapter(client *httpclient.Client, target string) *PoolHTTPAdapter {
	return &PoolHTTPAdapter{client: client, target: target, prefix: "/hospitals", display: "Hospital Service"}
}

// NewAmbulanceAdapter 创建救护车服务的适配器
func NewAmbulanceAdapter(client *httpclient.Client, target string) *PoolHTTPAdapter {
	return &PoolHTTPAdapter{client: client, target: target, prefix: "/ambulances", display: "Ambulance Service"}
}

func (a *PoolHTTPAdapter) op(action string) string {
	return "orchestrator." + strings.Trim(a.prefix, "/") + "." + action
}

// Allocate 实现了预占的 HTTP 调用
func (a *PoolHTTPAdapter) Allocate(ctx context.Context, location string, amount int) (*pooldomain.AllocationResult, error) {
	var resp allocateResponse
	err := a.client.PostJSON(ctx, a.target, a.prefix+"/allocate", allocateRequest{Location: location, Amount: amount}, &resp)
	if err != nil {
		return nil, translate(a.op("allocate"), a.display, err)
	}
	if !resp.Success || resp.Data == nil {
		return nil, apperr.Wrap(apperr.KindDownstreamUnavailable, a.op("allocate"),
			errors.New("allocation response has no data"), a.display+" unavailable")
	}
	return resp.Data, nil
}

// Release 实现了补偿的 HTTP 调用
func (a *PoolHTTPAdapter) Release(ctx context.Context, reversal pooldomain.Reversal) error {
	var resp releaseResponse
	if err := a.client.PostJSON(ctx, a.target, a.prefix+"/release", reversal, &resp); err != nil {
		return translate(a.op("release"), a.display, err)
	}
	if !resp.Success {
		return apperr.Wrap(apperr.KindDownstreamUnavailable, a.op("release"),
			errors.New("release was not acknowledged"), a.display+" unavailable")
	}
	return nil
}
