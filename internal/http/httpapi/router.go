package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/maykecorrea/dressup/internal/http/handlers"
	"github.com/maykecorrea/dressup/internal/middleware"
)

// Options configures the router middleware stack.
type Options struct {
	Logger             zerolog.Logger
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	DefaultLocale      string
	CountryLookup      middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Get("/v1/catalog", app.CatalogList)
	r.Get("/v1/catalog/{id}", app.CatalogGet)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute))
		r.Post("/v1/auth/signup", app.Signup)
		r.Post("/v1/auth/login", app.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMinute, time.Minute))

		r.Get("/v1/me", app.Me)

		r.Route("/v1/compositions", func(r chi.Router) {
			r.Post("/", app.Compose)
			r.Post("/single", app.ComposeSingle)
			r.Post("/looks", app.ComposeLooks)
			r.Delete("/{requestID}", app.CancelComposition)
		})

		r.Post("/v1/garments/describe", app.DescribeGarment)
		r.Post("/v1/styles/suggest", app.SuggestStyles)

		r.Route("/v1/gallery", func(r chi.Router) {
			r.Post("/", app.GallerySave)
			r.Get("/", app.GalleryList)
			r.Get("/export", app.GalleryExport)
			r.Get("/{key}", app.GalleryOpen)
			r.Delete("/{key}", app.GalleryDelete)
		})
	})

	return r
}
