package fx

import (
	"guildhall/internal/api"
	"guildhall/internal/config"
	"guildhall/internal/database"
	"guildhall/internal/discord"
	"guildhall/internal/logger"
	"guildhall/internal/repository"
	"guildhall/internal/server"
	"guildhall/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// store
	fx.Provide(repository.NewStore),
	// external clients
	fx.Provide(api.NewRaidHelperClient),
	fx.Provide(discord.NewSyncer),
	// svc
	fx.Provide(service.NewIdentityService),
	fx.Provide(service.NewRosterService),
	// server
	fx.Provide(server.New),
)
