// cmd/hospital-service/main.go
package main

import (
	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/service/pool"
	"emergency-nexus/internal/service/pool/domain"
)

const serviceName = "hospital-service"

// main 是 ICU 床位池的组装根
func main() {
	bootstrap.Init(serviceName, 3001)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        3001,
		RegisterHandlers: func(appCtx *bootstrap.AppCtx) error {
			return pool.Wire(appCtx, domain.KindICUBed, "/hospitals")
		},
	})
}
