package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hilife/servicereport-backend/api/controllers"
	"github.com/hilife/servicereport-backend/api/routes"
	"github.com/hilife/servicereport-backend/internal/artifacts"
	"github.com/hilife/servicereport-backend/internal/auth"
	"github.com/hilife/servicereport-backend/internal/reports"
	"github.com/hilife/servicereport-backend/internal/users"
	"github.com/hilife/servicereport-backend/pkg/auth/session"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/db"
	"github.com/hilife/servicereport-backend/pkg/instance"
	"github.com/hilife/servicereport-backend/pkg/logger"
	"github.com/hilife/servicereport-backend/pkg/migrate"
	"github.com/hilife/servicereport-backend/pkg/outbox"
	"github.com/hilife/servicereport-backend/pkg/redis"
	"github.com/hilife/servicereport-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	loc, err := cfg.App.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid time zone", err)
		os.Exit(1)
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	identities := users.NewIdentityRepository(dbClient.DB())
	roles := users.NewRoleRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		Identities:     identities,
		Roles:          roles,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	userService, err := users.NewService(users.ServiceParams{
		Identities: identities,
		Roles:      roles,
		Tasks:      users.NewTaskRepository(dbClient.DB()),
		Password:   cfg.Password,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create users service", err)
		os.Exit(1)
	}

	artifactStore, err := artifacts.NewStore(gcsClient, cfg.GCS.BucketName, cfg.GCS.ReportsDir)
	if err != nil {
		logg.Error(context.Background(), "failed to create artifact store", err)
		os.Exit(1)
	}

	reportService, err := reports.NewService(reports.ServiceParams{
		Repo:      reports.NewRepository(dbClient.DB()),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Artifacts: artifactStore,
		Location:  loc,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			Sessions: sessionManager,
			Store:    redisClient,
			Auth:     authService,
			Reports:  reportService,
			Users:    userService,
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"gcs":      gcsClient,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
