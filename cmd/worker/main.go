package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hilife/servicereport-backend/internal/artifacts"
	"github.com/hilife/servicereport-backend/internal/completion"
	"github.com/hilife/servicereport-backend/internal/notify"
	"github.com/hilife/servicereport-backend/internal/reportpdf"
	"github.com/hilife/servicereport-backend/internal/reportrender"
	"github.com/hilife/servicereport-backend/internal/reports"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/instance"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/mailer"
	"github.com/hilife/servicereport-backend/pkg/metrics"
	"github.com/hilife/servicereport-backend/pkg/outbox/idempotency"
	"github.com/hilife/servicereport-backend/pkg/outbox/registry"
	"github.com/hilife/servicereport-backend/pkg/pubsub"
	"github.com/hilife/servicereport-backend/pkg/redis"
	"github.com/hilife/servicereport-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	loc, err := cfg.App.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid time zone", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	sender, err := mailer.NewSMTPSender(cfg.SMTP, logg)
	if err != nil {
		logg.Error(ctx, "failed to create smtp sender", err)
		os.Exit(1)
	}
	notifier, err := notify.NewNotifier(sender, cfg.SMTP.OpsMailbox)
	if err != nil {
		logg.Error(ctx, "failed to create notifier", err)
		os.Exit(1)
	}

	artifactStore, err := artifacts.NewStore(gcsClient, cfg.GCS.BucketName, cfg.GCS.ReportsDir)
	if err != nil {
		logg.Error(ctx, "failed to create artifact store", err)
		os.Exit(1)
	}

	renderer, err := reportrender.New()
	if err != nil {
		logg.Error(ctx, "failed to parse report template", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()

	trigger, err := completion.NewTrigger(completion.TriggerParams{
		Reports:   reports.NewRepository(dbClient.DB()),
		Renderer:  renderer,
		Generator: reportpdf.NewGenerator(cfg.Renderer, logg),
		Artifacts: artifactStore,
		Notifier:  notifier,
		Company:   reportrender.CompanyFromConfig(cfg.Company),
		Location:  loc,
		Timeout:   cfg.Pipeline.Timeout,
		ClaimTTL:  cfg.Pipeline.ClaimTTL,
		Metrics:   metrics.NewPipelineMetrics(reg),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create completion trigger", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(ctx, "failed to create idempotency manager", err)
		os.Exit(1)
	}

	consumer, err := completion.NewConsumer(pubsubClient.ReportsSubscription(), trigger, manager, registry.NewReportDecoderRegistry(), logg)
	if err != nil {
		logg.Error(ctx, "failed to create completion consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		Consumer: consumer,
		Gatherer: reg,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
			"gcs":      gcsClient,
		},
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}
