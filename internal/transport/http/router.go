package httptransport

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	phonehandler "phones/internal/phone/handler"
	"phones/internal/platform/middleware"
)

// NewRouter wires the public phone API, the admin surface and the
// operational endpoints.
func NewRouter(phones *phonehandler.Handler, db *sql.DB, adminToken string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)

	phones.Register(r)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.RequireAdminToken(adminToken, logger))
		phones.RegisterAdmin(admin)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			logger.ErrorContext(req.Context(), "health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return r
}
