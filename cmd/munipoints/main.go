package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avlasov/munipoints/internal/achievement"
	"github.com/avlasov/munipoints/internal/backup"
	"github.com/avlasov/munipoints/internal/bot"
	"github.com/avlasov/munipoints/internal/campaign"
	"github.com/avlasov/munipoints/internal/catalog"
	"github.com/avlasov/munipoints/internal/config"
	"github.com/avlasov/munipoints/internal/database"
	"github.com/avlasov/munipoints/internal/logging"
	"github.com/avlasov/munipoints/internal/notify"
	"github.com/avlasov/munipoints/internal/report"
	"github.com/avlasov/munipoints/internal/store"
	"github.com/avlasov/munipoints/internal/sweep"
	"github.com/avlasov/munipoints/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.BotToken == "" {
		log.Fatal("MUNIPOINTS_BOT_TOKEN is required")
	}

	logger := logging.Setup(cfg.LogLevel)

	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		log.Fatalf("failed to load tables: %v", err)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	municipal := store.NewMunicipalTaskStore(db)
	campaigns := store.NewCampaignStore(db)
	achievements := store.NewAchievementStore(db)
	settings := store.NewSettingsStore(db)
	cat := catalog.NewStore(cfg.CatalogPath)

	client := bot.NewClient(cfg.BotToken, cfg.APIBaseURL, logger)
	dispatcher := notify.New(client, logger)

	audit := campaign.NewAudit(cfg.AuditPath)
	taskEngine := tasks.NewEngine(municipal, users, achievements, cat, dispatcher, tables, logger)
	campaignEngine := campaign.NewEngine(users, campaigns, achievements, dispatcher, audit, tables, logger)
	badgeEngine := achievement.NewEngine(achievements, dispatcher, tables, logger)
	reports := report.NewGenerator(users, campaigns)

	router := bot.NewRouter(client, users, achievements, settings, taskEngine, campaignEngine, badgeEngine, cat, reports, tables, logger)
	poller := bot.NewPoller(client, router, logger)

	scheduler := sweep.NewScheduler(logger,
		sweep.Job{
			Name:     "campaign-expiry",
			Interval: 24 * time.Hour,
			Run:      campaignEngine.SweepExpired,
		},
		sweep.Job{
			Name:     "deadline-reminders",
			Interval: 30 * time.Minute,
			Run:      taskEngine.SweepDeadlines,
		},
	)

	backups := backup.NewManager(backup.Config{
		Endpoint:  cfg.BackupEndpoint,
		Bucket:    cfg.BackupBucket,
		Region:    cfg.BackupRegion,
		AccessKey: cfg.BackupAccessKey,
		SecretKey: cfg.BackupSecretKey,
		Keep:      cfg.BackupKeep,
		DBPath:    cfg.DBPath,
	}, db, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	backups.Start(ctx)

	go poller.Run(ctx)
	logger.Info("munipoints running", "cities", len(tables.Cities), "admins", len(tables.AdminIDs))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()
	scheduler.Stop()
	backups.Stop()
}
