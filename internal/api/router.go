package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apikey"
	"github.com/parabase-io/parabase/internal/audit"
	"github.com/parabase-io/parabase/internal/auth"
	"github.com/parabase-io/parabase/internal/backup"
	"github.com/parabase-io/parabase/internal/metrics"
	"github.com/parabase-io/parabase/internal/objectstore"
	"github.com/parabase-io/parabase/internal/provision"
	"github.com/parabase-io/parabase/internal/query"
	"github.com/parabase-io/parabase/internal/repositories"
	"github.com/parabase-io/parabase/internal/scheduler"
	"github.com/parabase-io/parabase/internal/settings"
	"github.com/parabase-io/parabase/internal/sqlexec"
)

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Store     repositories.Store
	Keys      *apikey.Service
	Sessions  *auth.Service
	Queries   *query.Service
	Executor  *sqlexec.Executor
	Broker    *objectstore.Broker
	Backups   *backup.Service
	Provision *provision.Service
	Scheduler *scheduler.Scheduler
	Settings  *settings.Service
	Audit     *audit.Recorder
	Schemas   *query.SchemaCache

	SecureCookies bool
	Logger        *zap.Logger
}

// NewRouter assembles the full route tree: the key-authenticated public API
// under /v1, the session-authenticated admin API under /admin, and the
// operational endpoints.
func NewRouter(d Deps) chi.Router {
	logger := d.Logger.Named("api")

	data := NewDataHandler(d.Queries, d.Logger)
	storage := NewStorageHandler(d.Broker, d.Store, d.Logger)
	authh := NewAuthHandler(d.Sessions, d.SecureCookies, d.Logger)
	projects := NewProjectHandler(d.Store, d.Provision, d.Keys, d.Schemas, d.Audit, d.Logger)
	sqlh := NewSQLHandler(d.Executor, d.Audit, d.Logger)
	backups := NewBackupHandler(d.Backups, d.Audit, d.Logger)
	cronJobs := NewCronJobHandler(d.Store, d.Scheduler, d.Logger)
	settingsH := NewSettingsHandler(d.Settings, d.Audit, d.Logger)
	users := NewUserHandler(d.Store, d.Logger)
	stats := NewStatsHandler(d.Store, d.Scheduler, d.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		Ok(w, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Public data and storage API, authenticated by x-api-key.
	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(d.Settings, logger))
		r.Use(RequireAPIKey(d.Keys, logger))

		r.Route("/db", func(r chi.Router) {
			r.Get("/tables", data.Tables)
			r.Get("/{table}", data.Select)

			// Mutations need the secret tier; publishable keys read only.
			r.Group(func(r chi.Router) {
				r.Use(RequireSecretKey(logger))
				r.Post("/{table}", data.Insert)
				r.Patch("/{table}", data.Update)
				r.Delete("/{table}", data.Delete)
			})
		})

		r.Route("/storage", func(r chi.Router) {
			r.Post("/signed-upload", storage.SignedUpload)
			r.Get("/signed-download", storage.SignedDownload)

			r.Group(func(r chi.Router) {
				r.Use(RequireSecretKey(logger))
				r.Get("/list", storage.List)
				r.Delete("/object", storage.DeleteObject)
			})
		})
	})

	// Admin console API, authenticated by session.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/auth/login", authh.Login)
		r.Post("/auth/register", authh.Register)

		r.Group(func(r chi.Router) {
			r.Use(AuthenticateSession(d.Sessions, logger))

			r.Post("/auth/logout", authh.Logout)
			r.Get("/auth/me", authh.Me)

			r.Get("/stats", stats.Overview)
			r.Get("/audit", stats.Audit)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projects.List)
				r.Post("/", projects.Create)
				r.Get("/{id}", projects.Get)
				r.Patch("/{id}", projects.Update)
				r.Delete("/{id}", projects.Delete)

				r.Get("/{id}/tables", projects.Tables)

				r.Get("/{id}/keys", projects.Keys)
				r.Post("/{id}/keys/rotate", projects.RotateKey)
				r.Delete("/{id}/keys/{keyID}", projects.RevokeKey)

				r.Post("/{id}/sql", sqlh.Execute)

				r.Get("/{id}/buckets", storage.Buckets)
				r.Post("/{id}/buckets", storage.CreateBucket)
				r.Get("/{id}/files", storage.Files)

				r.Post("/{id}/backups/retention", backups.ApplyRetention)
			})

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backups.List)
				r.Post("/", backups.Create)
				r.Get("/{id}", backups.Get)
				r.Delete("/{id}", backups.Delete)
				r.Post("/{id}/restore", backups.Restore)
			})

			r.Route("/cronjobs", func(r chi.Router) {
				r.Get("/", cronJobs.List)
				r.Post("/", cronJobs.Create)
				r.Get("/{id}", cronJobs.Get)
				r.Put("/{id}", cronJobs.Update)
				r.Delete("/{id}", cronJobs.Delete)
				r.Get("/{id}/runs", cronJobs.Runs)
				r.Post("/{id}/trigger", cronJobs.Trigger)
			})

			r.Get("/settings", settingsH.Get)

			// User, invite and settings mutations need the admin role;
			// operators get read-only access to the rest of the console.
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(logger))

				r.Patch("/settings", settingsH.Update)

				r.Get("/users", users.List)
				r.Patch("/users/{id}", users.Update)

				r.Get("/invites", users.ListInvites)
				r.Post("/invites", authh.CreateInvite)
				r.Delete("/invites/{id}", users.DeleteInvite)
			})
		})
	})

	return r
}
