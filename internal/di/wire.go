//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"ChainSignal/pkg/config"
	"ChainSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogDigest,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisClient,
		ProvideClickHouseClient,

		// Repositories
		ProvideListStore,
		ProvideCache,
		ProvideDataSource,

		// Use cases
		ProvideAlertFeed,
		ProvideSampler,
		ProvidePredictionManager,
		ProvideAlertEngine,
		ProvideScheduler,

		// Transport
		ProvideHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
