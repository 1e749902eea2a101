package adapter

import (
	"context"
	"net/url"

	"emergency-nexus/internal/pkg/apperr"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/pkg/metrics"

	"github.com/pkg/errors"
)

// listResponse 是资源池查询接口响应中我们关心的部分
type listResponse struct {
	Success       bool `json:"success"`
	TotalCapacity *int `json:"totalCapacity"`
	Data          []struct {
		AvailableCapacity int `json:"availableCapacity"`
	} `json:"data"`
}

// PoolHTTPReader 通过资源池服务的查询接口读取可用容量
type PoolHTTPReader struct {
	client  *httpclient.Client
	target  string
	path    string
	query   url.Values
	service string // 指标标签
	display string // 错误信息中的服务名
}

// NewHospitalReader 读取某位置所有医院的 ICU 床位总数
func NewHospitalReader(client *httpclient.Client, target string) *PoolHTTPReader {
	return &PoolHTTPReader{client: client, target: target, path: "/hospitals", service: "hospital", display: "Hospital Service"}
}

// NewAmbulanceReader 只统计空闲救护车的容量
func NewAmbulanceReader(client *httpclient.Client, target string) *PoolHTTPReader {
	return &PoolHTTPReader{
		client:  client,
		target:  target,
		path:    "/ambulances",
		query:   url.Values{"status": {"FREE"}},
		service: "ambulance",
		display: "Ambulance Service",
	}
}

// AvailableCapacity 实现了 port.CapacityReader 接口
func (r *PoolHTTPReader) AvailableCapacity(ctx context.Context, location string) (int, error) {
	query := url.Values{"location": {location}}
	for k, v := range r.query {
		query[k] = v
	}

	var resp listResponse
	if err := r.client.GetJSON(ctx, r.target, r.path, query, &resp); err != nil {
		return 0, r.unavailable(err)
	}
	if !resp.Success {
		return 0, r.unavailable(errors.New("downstream reported failure"))
	}
	if resp.TotalCapacity != nil {
		return *resp.TotalCapacity, nil
	}

	total := 0
	for _, p := range resp.Data {
		total += p.AvailableCapacity
	}
	return total, nil
}

func (r *PoolHTTPReader) unavailable(err error) error {
	metrics.DownstreamErrors.WithLabelValues(r.service).Inc()
	return apperr.Wrap(apperr.KindDownstreamUnavailable, "validation.read."+r.service, err, r.display+" unavailable")
}
