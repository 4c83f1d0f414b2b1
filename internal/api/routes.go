package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbrauss/FMM2D/internal/api/handlers"
	"github.com/kbrauss/FMM2D/internal/apierr"
	"github.com/kbrauss/FMM2D/internal/cache"
	"github.com/kbrauss/FMM2D/internal/middleware"
)

// Options wires the router's collaborators.
type Options struct {
	Solver handlers.Solver
	// Cache enables the cache admin routes when non-nil.
	Cache cache.Cache
	// RateLimiter guards the solve routes when non-nil.
	RateLimiter  *middleware.RateLimiter
	CORS         *middleware.CORSConfig
	MaxBodyBytes int64
	MaxPoints    int
}

// NewRouter builds the HTTP API.
func NewRouter(opts Options) *mux.Router {
	r := mux.NewRouter()
	r.Use(instrument, middleware.RequestID, middleware.RecoverWithSentry, middleware.SecurityHeaders, middleware.CORS(opts.CORS))

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierr.WriteErrorWithContext(w, r, apierr.ResourceNotFound("route"))
	})

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handlers.Health).Methods(http.MethodGet, http.MethodOptions)

	sh := handlers.NewSolveHandler(opts.Solver, opts.MaxPoints)
	solveRoutes := api.PathPrefix("/solve").Subrouter()
	if opts.RateLimiter != nil {
		solveRoutes.Use(opts.RateLimiter.Limit)
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}
	solveRoutes.Use(middleware.LimitBody(maxBody), middleware.Compress, middleware.ETag)
	solveRoutes.HandleFunc("", sh.PostSolve).Methods(http.MethodPost, http.MethodOptions)
	solveRoutes.HandleFunc("/direct", sh.PostSolveDirect).Methods(http.MethodPost, http.MethodOptions)

	if opts.Cache != nil {
		ch := handlers.NewCacheAdminHandler(opts.Cache)
		api.HandleFunc("/cache/stats", ch.GetCacheStats).Methods(http.MethodGet)
		api.HandleFunc("/cache/invalidate", ch.InvalidateCache).Methods(http.MethodPost)
	}

	return r
}
