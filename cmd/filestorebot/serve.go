package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Noha9900/advance-filestorebot/internal/api"
	"github.com/Noha9900/advance-filestorebot/internal/bot"
	"github.com/Noha9900/advance-filestorebot/internal/clock"
	"github.com/Noha9900/advance-filestorebot/internal/content"
	"github.com/Noha9900/advance-filestorebot/internal/delivery"
	"github.com/Noha9900/advance-filestorebot/internal/events"
	"github.com/Noha9900/advance-filestorebot/internal/expiry"
	"github.com/Noha9900/advance-filestorebot/internal/gate"
	"github.com/Noha9900/advance-filestorebot/internal/metrics"
	"github.com/Noha9900/advance-filestorebot/internal/platform"
	"github.com/Noha9900/advance-filestorebot/internal/platform/telegram"
	"github.com/Noha9900/advance-filestorebot/internal/presence"
	"github.com/Noha9900/advance-filestorebot/internal/relay"
	"github.com/Noha9900/advance-filestorebot/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot and its HTTP health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("Starting bot", "store", cfg.StoreDriver, "events", cfg.Events.Driver, "workers", cfg.Workers)

		repo, err := store.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initialize store: %w", err)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				logger.Error("Failed to close repository", "error", closeErr)
			}
		}()
		logger.Info("Store connected")

		if cfg.GateConfigPath != "" {
			req, err := gate.LoadSeed(cfg.GateConfigPath)
			if err != nil {
				return err
			}
			if err := repo.SaveGateRequirement(ctx, req); err != nil {
				return fmt.Errorf("seed gate requirements: %w", err)
			}
			logger.Info("Gate requirements seeded", "path", cfg.GateConfigPath, "additional", len(req.Additional))
		}

		pub, err := events.New(cfg.Events, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Error("Failed to close event publisher", "error", closeErr)
			}
		}()

		metrics.MustRegister()

		client, err := telegram.New(cfg.BotToken, cfg.RequestTimeout, logger)
		if err != nil {
			return err
		}
		logger.Info("Authorized on Telegram", "username", client.Username())

		clk := clock.Real()
		janitor := expiry.New(client, clk, cfg.RequestTimeout, logger)
		tracker := presence.NewTracker(clk, cfg.OperatorOnlineWindow)

		b := bot.New(bot.Deps{
			Client:  client,
			Store:   repo,
			Content: content.NewStore(repo, pub, clk),
			Gate:    gate.New(repo, client, logger),
			Delivery: delivery.NewEngine(client, janitor, delivery.Options{
				BatchDelay: cfg.BatchDelay,
				Clock:      clk,
				Publisher:  pub,
				Logger:     logger,
			}),
			Janitor: janitor,
			Relay: relay.NewBroker(client, repo, tracker, relay.Config{
				OperatorID: cfg.AdminID,
				MaxVideo:   cfg.RelayMaxVideo,
				Clock:      clk,
				Publisher:  pub,
				Logger:     logger,
			}),
			Presence: tracker,
			Clock:    clk,
			Logger:   logger,
		}, bot.Options{
			OperatorID:  cfg.AdminID,
			BotUsername: client.Username(),
			Workers:     cfg.Workers,
		})
		b.Start(ctx)

		srv := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      api.NewRouter(api.NewHealthHandler(repo, 5*time.Second)),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			logger.Info("Server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server failed", "error", err)
				stop()
			}
		}()

		logger.Info("Bot is polling for updates")
		client.Run(ctx, func(u platform.Update) { b.Submit(ctx, u) })

		stop()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", "error", err)
		}

		b.Wait()
		dropped := janitor.Stop()
		logger.Info("Bot stopped successfully", "pending_deletions_dropped", dropped)
		return nil
	},
}
