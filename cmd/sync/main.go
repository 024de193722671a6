package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/josepita/shopify-sync/internal/config"
	"github.com/josepita/shopify-sync/internal/detect"
	"github.com/josepita/shopify-sync/internal/logging"
	"github.com/josepita/shopify-sync/internal/migrate"
	"github.com/josepita/shopify-sync/internal/queue"
	"github.com/josepita/shopify-sync/internal/report"
	"github.com/josepita/shopify-sync/internal/snapshot"
	"github.com/josepita/shopify-sync/internal/state"
	"github.com/josepita/shopify-sync/internal/sync"
)

func main() {
	var (
		forceFlag  = flag.String("force", "", "force-enqueue every catalog row: all, prices or stock")
		configFlag = flag.String("config", "", "path to a YAML config file")
	)
	flag.Parse()

	logger := logging.NewStdLogger("sync ")

	force, err := sync.ParseForce(*forceFlag)
	if err != nil {
		logger.Printf("%v", err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logger.Printf("config: %v", err)
		os.Exit(1)
	}

	logger.Printf("ENV=%q STATE_BACKEND=%q DB_DSN_set=%v DATA_DIR=%q",
		cfg.Env, cfg.StateBackend, cfg.MySQLDSN != "", cfg.DataDir)

	ctx := context.Background()

	factoryRes, err := state.NewStore(ctx, state.FactoryConfig{
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
			if err := migrate.ApplyDir(ctx, factoryRes.DB, cfg.MigrationsDir); err != nil {
				logger.Printf("migrations failed: %v", err)
				os.Exit(1)
			}
		}
	}

	snapshots, err := snapshot.NewStore(cfg.DataDir, logger)
	if err != nil {
		logger.Printf("snapshot store init failed: %v", err)
		os.Exit(1)
	}

	var notifier report.Notifier = report.NopNotifier{}
	if cfg.SMTPHost != "" && cfg.AlertRecipient != "" {
		notifier = &report.SMTPNotifier{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUser,
			Password:  cfg.SMTPPassword,
			From:      cfg.SMTPUser,
			Recipient: cfg.AlertRecipient,
		}
	}

	job := &sync.Job{
		Snapshots: snapshots,
		Feed: snapshot.Downloader{
			URL:      cfg.FeedURL,
			Username: cfg.FeedUsername,
			Password: cfg.FeedPassword,
		},
		Store:    factoryRes.Store,
		Queue:    queue.New(factoryRes.Store, logger),
		Notifier: notifier,
		Gate: detect.Gate{
			MaxZeroStockPercent:  cfg.MaxZeroStockPercent,
			MaxCountDriftPercent: cfg.MaxCountDriftPercent,
		},
		Logger:        logger,
		DaysThreshold: cfg.DaysThreshold,
	}

	if _, err := job.Run(ctx, force); err != nil {
		if errors.Is(err, detect.ErrSnapshotRejected) {
			logger.Printf("run aborted: %v", err)
			os.Exit(3)
		}
		logger.Printf("run failed: %v", err)
		os.Exit(1)
	}
}
