// cmd/orchestrator-service/main.go
package main

import (
	"emergency-nexus/internal/pkg/bootstrap"
	"emergency-nexus/internal/service/orchestrator"
)

const serviceName = "orchestrator-service"

// main 是编排服务的组装根：校验服务和两个资源池服务都通过 HTTP 调用
func main() {
	bootstrap.Init(serviceName, 3004)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		Port:             3004,
		RegisterHandlers: orchestrator.Wire,
	})
}
