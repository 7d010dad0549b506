package fx

import (
	"math/rand"
	"time"

	"scrims-bot/internal/config"
	"scrims-bot/internal/database"
	"scrims-bot/internal/events"
	"scrims-bot/internal/logger"
	"scrims-bot/internal/match"
	"scrims-bot/internal/notify"
	"scrims-bot/internal/queue"
	"scrims-bot/internal/repository"
	"scrims-bot/internal/server"
	"scrims-bot/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideBus(logger zerolog.Logger) *events.Bus {
	return events.NewBus(logger)
}

func ProvideRand(cfg *config.Config) *rand.Rand {
	seed := cfg.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func ProvideRegistry(matches *repository.MatchRepository, settler *repository.SettlementRepository, history *repository.HistoryRepository, bus *events.Bus, log zerolog.Logger, rng *rand.Rand) *match.Registry {
	return match.NewRegistry(matches, settler, history, bus, log, rng)
}

func ProvidePool(queues *repository.QueueRepository, players *repository.PlayerRepository, bus *events.Bus, log zerolog.Logger) *queue.Pool {
	return queue.NewPool(queues, players, bus, log)
}

func ProvideWebhook(cfg *config.Config, bus *events.Bus, log zerolog.Logger) *notify.WebhookPublisher {
	return notify.NewWebhookPublisher(cfg.WebhookURL, bus, log)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(ProvideBus),
	fx.Provide(ProvideRand),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewHistoryRepository),
	fx.Provide(repository.NewGuildConfigRepository),
	fx.Provide(repository.NewQueueRepository),
	fx.Provide(repository.NewSettlementRepository),
	// core
	fx.Provide(ProvideRegistry),
	fx.Provide(ProvidePool),
	// svc
	fx.Provide(service.NewScrimsService),
	fx.Provide(service.NewStatsService),
	fx.Provide(service.NewAdminService),
	// edges
	fx.Provide(ProvideWebhook),
	fx.Provide(server.New),
)
