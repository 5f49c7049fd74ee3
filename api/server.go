/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. zap logger: Structured request logging
  4. CORS:       Cross-origin requests for the frontend
  5. Limiter:    Token-bucket throttle over the whole API

ROUTE GROUPS:
  /api/catalog/*   Master data listings
  /api/runs/*      Wizard sessions
  /api/admin/*     Seeding (dev only)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	// RatePerSecond and Burst configure the API-wide token bucket.
	// RatePerSecond <= 0 disables throttling.
	RatePerSecond float64
	Burst         int
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, log *zap.Logger, opts RouterOptions) *chi.Mux {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if opts.RatePerSecond > 0 {
		r.Use(throttle(rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst)))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/products", h.ListProducts)
			r.Get("/stores", h.ListStores)
			r.Get("/cedis", h.ListCedis)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", h.CreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRun)
				r.Post("/select", h.SelectStores)
				r.Post("/advance", h.Advance)
				r.Post("/back", h.Back)
				r.Get("/pairs", h.ListPairs)
				r.Get("/conflicts", h.ListConflicts)
				r.Get("/review", h.Review)
				r.Put("/overrides/{product}/{store}", h.SetOverride)
				r.Delete("/overrides/{product}/{store}", h.ClearOverride)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/seed", h.SeedDemo)
		})
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// throttle rejects requests beyond the token bucket with 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
