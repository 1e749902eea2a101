// cmd/validation-service/main.go
package main

import (
	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/service/validation"
)

const serviceName = "validation-service"

func main() {
	bootstrap.Init(serviceName, 3003)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             3003,
		RegisterHandlers: validation.Wire,
	})
}
