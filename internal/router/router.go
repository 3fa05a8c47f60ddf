package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/checkin"
	"github.com/squadpulse/service-core/internal/dashboard"
	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/internal/preference"
	"github.com/squadpulse/service-core/internal/session"
	"github.com/squadpulse/service-core/internal/whisper"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// Deps carries everything the router mounts.
type Deps struct {
	Logger        *zap.SugaredLogger
	SessionSecret []byte
	Identity      session.Resolver
	Directory     *directory.Handler
	Checkins      *checkin.Handler
	Whispers      *whisper.Handler
	Preferences   *preference.Handler
	Dashboard     *dashboard.Handler
}

// New builds the chi router: open health endpoint, everything else behind
// the session middleware.
func New(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Use(LoggingMiddleware(d.Logger))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/squadpulse/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		r.Group(func(r chi.Router) {
			r.Use(session.Middleware(d.SessionSecret, d.Identity, d.Logger))

			r.Get("/organizations", d.Directory.ListOrganizations)
			r.Get("/teams", d.Directory.ListTeams)
			r.Post("/teams", d.Directory.CreateTeam)

			r.Post("/checkins", d.Checkins.Create)
			r.Get("/checkins", d.Checkins.List)
			r.Post("/checkins/{id}/comments", d.Checkins.CreateComment)
			r.Get("/checkins/{id}/comments", d.Checkins.ListComments)

			r.Get("/whispers", d.Whispers.Wall)
			r.Post("/whispers", d.Whispers.Create)
			r.Patch("/whispers/{id}", d.Whispers.Update)
			r.Delete("/whispers/{id}", d.Whispers.Delete)
			r.Post("/whispers/{id}/like", d.Whispers.ToggleLike)
			r.Post("/whispers/{id}/comments", d.Whispers.AddComment)
			r.Post("/whispers/{id}/share", d.Whispers.Share)
			r.Post("/whispers/{id}/report", d.Whispers.Report)

			r.Get("/preferences", d.Preferences.Get)
			r.Post("/preferences", d.Preferences.Update)

			r.Get("/dashboard", d.Dashboard.Get)
		})
	})

	return r
}
