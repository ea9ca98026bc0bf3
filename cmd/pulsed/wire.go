//go:build wireinject
// +build wireinject

package main

//go:generate go run -mod=mod github.com/google/wire/cmd/wire

import (
	"github.com/google/wire"
	"github.com/pulsedev/pulse/internal/agent"
	"github.com/pulsedev/pulse/internal/biz/plan"
	"github.com/pulsedev/pulse/internal/hostsched"
	"github.com/pulsedev/pulse/internal/infra/persistence/commonrepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/instancerepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/packagerepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/settingsrepo"
	"github.com/pulsedev/pulse/internal/infra/persistence/syncstaterepo"
	"github.com/pulsedev/pulse/pkg/config"
	"go.uber.org/zap"
)

func InitializeAgent(logger *zap.Logger, cfg config.Config, planCfg plan.Config, db commonrepo.DB) (*agent.Service, error) {
	wire.Build(
		wire.Bind(new(agent.IEmitter), new(*agent.EventBus)),
		wire.Bind(new(agent.Submitter), new(*hostsched.Scheduler)),

		ProvideRedisClient,

		// agent providers
		agent.Provider,

		// infra providers
		syncstaterepo.Provider,
		settingsrepo.Provider,
		packagerepo.Provider,
		instancerepo.Provider,
	)
	return nil, nil
}
