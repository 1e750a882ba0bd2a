package cmd

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/bot"
	"github.com/bebewat/wrecksshop/config"
	"github.com/bebewat/wrecksshop/database"
	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/pool"
	"github.com/bebewat/wrecksshop/rcon"
	"github.com/bebewat/wrecksshop/repository"
	"github.com/bebewat/wrecksshop/service"
	"github.com/bebewat/wrecksshop/webhook"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting wrecksshop...")

	// Load configuration
	cfg := config.Get()

	// Load shop data
	catalogs, err := config.LoadCatalogStore(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	servers, err := config.LoadServers(cfg.ServersPath)
	if err != nil {
		return fmt.Errorf("failed to load servers: %w", err)
	}

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Initialize event bus and unit of work factory
	eventBus := events.NewBus()
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Initialize services
	ledgerService := service.NewLedgerService(uowFactory)

	// Refund holds orphaned by a previous crash before accepting purchases.
	released, err := ledgerService.ReleaseStaleReservations(ctx, cfg.ReservationMaxAge)
	if err != nil {
		return fmt.Errorf("failed to reconcile stale reservations: %w", err)
	}
	if released > 0 {
		log.WithField("count", released).Info("Reconciled stale reservations from previous run")
	}

	// Initialize the server pool
	serverPool := pool.New(pool.Config{
		Servers:      servers,
		MaxAttempts:  cfg.CommandMaxAttempts,
		RetryBackoff: cfg.CommandRetryBackoff,
		OnStateChange: func(serverID string, oldState, newState rcon.State) {
			eventBus.Emit(ctx, events.ServerStateChangeEvent{
				ServerID: serverID,
				OldState: oldState.String(),
				NewState: newState.String(),
			})
		},
	})
	serverPool.Start(ctx)
	defer serverPool.Close()

	shopService := service.NewShopService(uowFactory, ledgerService, serverPool, catalogs, service.ShopConfig{
		PurchaseTimeout: cfg.PurchaseTimeout,
	})

	// Playtime accrual
	accrual := service.NewAccrualService(ledgerService, serverPool, eventBus, service.AccrualConfig{
		Interval:        cfg.AccrualInterval,
		PointsPerMinute: cfg.PointsPerMinute,
	})
	if err := accrual.Start(ctx); err != nil {
		return fmt.Errorf("failed to start playtime accrual: %w", err)
	}
	defer accrual.Stop()

	// Donation webhook
	webhookServer := webhook.NewServer(cfg.WebhookListenAddr, cfg.WebhookSecret, ledgerService)
	webhookErr := make(chan error, 1)
	go func() {
		webhookErr <- webhookServer.Start()
	}()

	// Initialize Discord bot
	log.Info("Initializing Discord bot...")
	discordBot, err := bot.New(bot.Config{
		Token:   cfg.DiscordToken,
		GuildID: cfg.DiscordGuildID,
	}, ledgerService, shopService, serverPool, catalogs, eventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}

	log.WithField("environment", cfg.Environment).Info("wrecksshop is running")

	select {
	case <-ctx.Done():
	case err := <-webhookErr:
		if err != nil {
			log.WithError(err).Error("Donation webhook failed")
		}
	}

	// Cleanup resources
	log.Info("Shutting down...")

	if err := discordBot.Close(); err != nil {
		log.WithError(err).Error("Error closing Discord bot")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down donation webhook")
	}

	log.Info("Shutdown completed")
	return nil
}
