package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"listingpilot/internal/http/handlers"
	"listingpilot/internal/middleware"
)

// Options tunes the cross-cutting request middleware.
type Options struct {
	DefaultLocale      string
	AllowedOrigins     []string
	RateLimitPerMinute int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/jobs", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.With(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute)).Post("/", app.JobSubmit)
		} else {
			r.Post("/", app.JobSubmit)
		}
		r.Get("/{id}", app.JobStatus)
		r.Get("/{id}/preview", app.JobPreview)
		r.Get("/{id}/listing", app.JobListing)
		r.Post("/{id}/cancel", app.JobCancel)
	})

	return r
}
