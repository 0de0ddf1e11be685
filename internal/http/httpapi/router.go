package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/language"

	"recreator/internal/http/handlers"
	"recreator/internal/infra"
	"recreator/internal/middleware"
)

// Options tunes the router's middleware stack.
type Options struct {
	Logger          infra.Logger
	DefaultLocale   string
	Locales         []language.Tag
	RateLimitPerMin int
	APITokens       []string
	CORSOrigins     []string
	// CountryLookup, when set, picks a locale for requests that carry no
	// language headers.
	CountryLookup middleware.CountryLookup
	// StaticDir, when set, is served under /static/ for locally published videos.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.Locales, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(opts.APITokens))
		r.Route("/v1/batches", func(r chi.Router) {
			r.Get("/{batch_id}", app.GetBatch)
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
				r.Post("/", app.CreateBatch)
				r.Post("/estimate", app.EstimateBatch)
			})
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	return r
}
