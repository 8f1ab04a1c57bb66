package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/byfaith/byfaith/internal/auth"
	"github.com/byfaith/byfaith/internal/observability"
	"github.com/byfaith/byfaith/internal/shared"
	"github.com/byfaith/byfaith/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Policy         SecurityPolicy
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router. Auth endpoints mount at the root so
// the frontend reaches them under the same paths it always has; everything
// else is static passthrough and the SPA fallback.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		Policy:         params.Policy,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	params.AuthHandler.MountRoutes(r)

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	distFS, err := fs.Sub(web.Dist, "dist")
	if err != nil {
		params.Logger.Error("create dist sub filesystem", slog.Any("error", err))
		return r
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(distFS)))
	r.Handle("/static/*", staticCacheHandler(fileServer))

	// SPA fallback: any unknown path serves the frontend shell and lets the
	// client router take over.
	index, err := fs.ReadFile(distFS, "index.html")
	if err != nil {
		params.Logger.Error("read spa index", slog.Any("error", err))
		return r
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(index)
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
