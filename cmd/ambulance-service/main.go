// cmd/ambulance-service/main.go
package main

import (
	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/service/pool"
	"emergency-nexus/internal/service/pool/domain"
)

const serviceName = "ambulance-service"

func main() {
	bootstrap.Init(serviceName, 3002)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        3002,
		RegisterHandlers: func(appCtx *bootstrap.AppCtx) error {
			return pool.Wire(appCtx, domain.KindAmbulance, "/ambulances")
		},
	})
}
