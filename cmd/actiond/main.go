package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/mixpanel/action-destinations-sub001/internal/core/config"
	"github.com/mixpanel/action-destinations-sub001/internal/core/storage"
	"github.com/mixpanel/action-destinations-sub001/internal/core/storage/postgres"
	"github.com/mixpanel/action-destinations-sub001/internal/delivery"
	"github.com/mixpanel/action-destinations-sub001/internal/destination"
	"github.com/mixpanel/action-destinations-sub001/internal/destinations/pager"
	"github.com/mixpanel/action-destinations-sub001/internal/destinations/webhook"
	"github.com/mixpanel/action-destinations-sub001/internal/mapping"
	"github.com/mixpanel/action-destinations-sub001/internal/migrations"
	"github.com/mixpanel/action-destinations-sub001/internal/server"
)

func main() {
	configPath := flag.String("config", "actiond.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Delivery Log (optional)
	var store storage.DeliveryStore = storage.NoopStore{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		dbAdapter, err := postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer dbAdapter.Close()

		// 2.1. Run Database Migrations
		if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		store = dbAdapter
		db = dbAdapter.DB()
	} else {
		slog.Info("No database configured, delivery log disabled")
	}

	// 3. Initialize Mapping Registry
	directives := mapping.NewRegistry()
	directives.Freeze()
	evaluator := mapping.NewEvaluator(directives)

	// 4. Initialize Destinations
	registry := destination.NewRegistry()
	for _, build := range []func(*mapping.Evaluator) (*destination.Destination, error){
		webhook.New,
		pager.New,
	} {
		dest, err := build(evaluator)
		if err != nil {
			slog.Error("Failed to build destination", "error", err)
			os.Exit(1)
		}
		if err := registry.Register(dest); err != nil {
			slog.Error("Failed to register destination", "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Destinations registered", "destinations", registry.IDs())

	// 5. Load Subscriptions
	subs, err := destination.NewFileSubscriptionRepository(cfg.Destinations.SubscriptionsDir, directives)
	if err != nil {
		slog.Error("Failed to load subscriptions", "error", err)
		os.Exit(1)
	}
	if err := registry.ApplySubscriptions(subs); err != nil {
		slog.Error("Failed to apply subscriptions", "error", err)
		os.Exit(1)
	}
	slog.Info("Subscriptions loaded", "sets", len(subs.Sets()))

	// 6. Initialize Delivery API
	deliverySvc := delivery.NewService(registry, evaluator, store, cfg.Server.MaxBodySizeMB,
		cfg.Destinations.EffectiveRequestTimeout())

	// 7. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), db, cfg.Server.Mode)
	deliverySvc.RegisterRoutes(srv.Engine)

	// 8. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
