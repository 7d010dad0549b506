package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"scrims-bot/internal/config"
	"scrims-bot/internal/constants"
	fxmodules "scrims-bot/internal/fx"
	"scrims-bot/internal/notify"
	"scrims-bot/internal/server"
	"scrims-bot/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	srv *server.Server,
	scrims *service.ScrimsService,
	webhook *notify.WebhookPublisher,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := scrims.Start(ctx); err != nil {
				return err
			}
			if err := webhook.Start(ctx); err != nil {
				return err
			}
			go func() {
				logger.Info().Str("addr", httpSrv.Addr).Msg("server starting")
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}
			if err := scrims.StopSweeper(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("sweeper did not stop cleanly")
			}
			if err := webhook.Stop(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("webhook publisher did not stop cleanly")
			}
			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}

			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
