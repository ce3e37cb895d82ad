package common

import "github.com/xerc1155/xchain/pkg/readiness"

const (
	ReadinessDatabase readiness.Component = "database"
	ReadinessGateway  readiness.Component = "gateway"
	ReadinessRelayer  readiness.Component = "relayer"
	ReadinessAPI      readiness.Component = "api"
)
