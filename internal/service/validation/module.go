// Package validation 组装校验服务：只读地判断一个位置的两类资源是否同时充足。
package validation

import (
	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/pkg/httpclient"
	"emergency-nexus/internal/service/validation/application"
	"emergency-nexus/internal/service/validation/infrastructure/adapter"
	"emergency-nexus/internal/service/validation/infrastructure/policy"
	"emergency-nexus/internal/service/validation/interfaces"

	zlog "github.com/rs/zerolog/log"
)

// Wire 创建下游客户端和准入规则并注册路由
func Wire(appCtx *bootstrap.AppCtx) error {
	cfg := appCtx.Config

	clientOpts := []httpclient.Option{httpclient.WithTimeout(cfg.HTTP.RequestTimeout)}
	if appCtx.Nacos != nil {
		clientOpts = append(clientOpts, httpclient.WithDiscoverer(appCtx.Nacos))
	}
	client := httpclient.NewClient(appCtx.Tracer, clientOpts...)

	opts := []application.Option{application.WithReadTimeout(cfg.HTTP.RequestTimeout)}
	if cfg.Validation.AdmissionRule != "" {
		p, err := policy.NewCELAdmissionPolicy(cfg.Validation.AdmissionRule)
		if err != nil {
			return err
		}
		opts = append(opts, application.WithAdmissionPolicy(p))
		zlog.Info().Str("rule", cfg.Validation.AdmissionRule).Msg("Admission rule loaded")
	}

	svc := application.NewValidationService(
		adapter.NewHospitalReader(client, cfg.Validation.HospitalService),
		adapter.NewAmbulanceReader(client, cfg.Validation.AmbulanceService),
		appCtx.Tracer,
		opts...,
	)
	interfaces.NewValidationHandler(svc).RegisterRoutes(appCtx.Mux)
	return nil
}
