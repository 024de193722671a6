package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/josepita/shopify-sync/internal/config"
	"github.com/josepita/shopify-sync/internal/logging"
	"github.com/josepita/shopify-sync/internal/migrate"
	"github.com/josepita/shopify-sync/internal/processor"
	"github.com/josepita/shopify-sync/internal/shopify"
	"github.com/josepita/shopify-sync/internal/state"
)

func main() {
	configFlag := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := logging.NewStdLogger("worker ")

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Printf("config: %v", err)
		os.Exit(1)
	}

	logger.Printf("ENV=%q STATE_BACKEND=%q DB_DSN_set=%v",
		cfg.Env, cfg.StateBackend, cfg.MySQLDSN != "")

	factoryRes, err := state.NewStore(context.Background(), state.FactoryConfig{
		Backend:  cfg.StateBackend,
		MySQLDSN: cfg.MySQLDSN,
	})
	if err != nil {
		logger.Printf("state store init failed: %v", err)
		os.Exit(1)
	}
	if factoryRes.DB != nil {
		defer factoryRes.DB.Close()
		if cfg.RunMigrations {
			if err := migrate.ApplyDir(context.Background(), factoryRes.DB, cfg.MigrationsDir); err != nil {
				logger.Printf("migrations failed: %v", err)
				os.Exit(1)
			}
		}
	}

	client := shopify.NewClient(cfg.ShopifyShopURL, cfg.ShopifyAccessToken,
		cfg.ShopifyAPIVersion, cfg.RequestInterval, logger)

	p := &processor.Processor{
		Store:      factoryRes.Store,
		API:        client,
		Logger:     logger,
		BatchSize:  cfg.BatchSize,
		Margin:     cfg.PriceMargin,
		LocationID: cfg.ShopifyLocationID,
		GroupDelay: cfg.RequestInterval,
		ItemDelay:  cfg.RequestInterval,
		CycleSleep: cfg.RequestInterval,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Printf("starting (env=%s)", cfg.Env)

		err := p.Run(ctx, cfg.PollInterval)
		if err != nil && err != context.Canceled {
			logger.Printf("worker stopped: %v", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(logger, cancel)
}

func waitForShutdown(logger interface{ Printf(string, ...any) }, cancel func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Printf("shutdown signal received")
	cancel()
	logger.Printf("shutdown complete")
}
