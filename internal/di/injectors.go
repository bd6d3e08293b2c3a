//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"
	"vfd/internal"
	"vfd/internal/controllers"
	"vfd/internal/events"
	"vfd/internal/providers"
	"vfd/internal/scheduler"
	"vfd/internal/semantic"
	"vfd/internal/services"
	"vfd/internal/storage"
	"vfd/internal/structures"
)

func InitApp(cfg *structures.CliFlags) (*internal.App, error) {

	wire.Build(
		providers.NewConfigProvider,
		providers.NewLogProvider,
		providers.NewCacheProvider,
		providers.NewMetricsProvider,

		storage.NewZstdCompressor,
		storage.NewSqliteStore,
		semantic.NewEmbedder,
		semantic.NewExtractor,
		events.NewBus,
		services.NewFingerprintService,
		scheduler.NewScheduler,
		controllers.NewApiController,
		controllers.NewHealthController,
		internal.InitRoutes,
		internal.NewApp,
	)

	return nil, nil
}
