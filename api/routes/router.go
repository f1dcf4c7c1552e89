package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hilife/servicereport-backend/api/controllers"
	"github.com/hilife/servicereport-backend/api/middleware"
	"github.com/hilife/servicereport-backend/internal/auth"
	"github.com/hilife/servicereport-backend/internal/reports"
	"github.com/hilife/servicereport-backend/internal/users"
	"github.com/hilife/servicereport-backend/pkg/auth/session"
	"github.com/hilife/servicereport-backend/pkg/config"
	"github.com/hilife/servicereport-backend/pkg/enums"
	"github.com/hilife/servicereport-backend/pkg/logger"
)

// Store is the Redis surface the HTTP layer needs for rate limits and
// idempotent replays.
type Store interface {
	controllers.Pinger
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps groups the services and clients mounted by NewRouter.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions session.AccessSessionChecker
	Store    Store
	Auth     auth.Service
	Reports  reports.Service
	Users    users.Service
	// Readiness holds extra dependencies checked by /health/ready, keyed by name.
	Readiness map[string]controllers.Pinger
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	for name, dep := range d.Readiness {
		readiness[name] = dep
	}
	if d.Store != nil {
		readiness["redis"] = d.Store
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.LoginRateLimit(cfg.AuthRateLimit, d.Store, logg)).Post("/login", controllers.AuthLogin(d.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, d.Sessions, logg)).Post("/logout", controllers.AuthLogout(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.Idempotency(d.Store, logg))

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", controllers.ReportList(d.Reports, logg))
			r.Post("/", controllers.ReportCreate(d.Reports, logg))
			r.Get("/{reportId}", controllers.ReportDetail(d.Reports, logg))
			r.Patch("/{reportId}", controllers.ReportUpdate(d.Reports, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
		r.Use(middleware.Idempotency(d.Store, logg))

		r.Delete("/reports/{reportId}", controllers.AdminReportDelete(d.Reports, logg))
		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.AdminUserList(d.Users, logg))
			r.Post("/", controllers.AdminUserCreate(d.Users, logg))
			r.Post("/{uid}/reset-password", controllers.AdminUserResetPassword(d.Users, logg))
			r.Delete("/{uid}", controllers.AdminUserDelete(d.Users, logg))
		})
	})

	return r
}
