package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/handler"
	"github.com/pauljmillar/survey-sub001/internal/metrics"
	"github.com/pauljmillar/survey-sub001/internal/middleware"
	"github.com/pauljmillar/survey-sub001/internal/points"
	"github.com/pauljmillar/survey-sub001/internal/store"
	ws "github.com/pauljmillar/survey-sub001/internal/websocket"
)

// Options carries the collaborators and limits the router needs.
type Options struct {
	Verifier         auth.Verifier
	Limiter          middleware.Limiter
	RateLimit        int
	RateLimitWindow  time.Duration
	AllowedOrigins   []string
	LeaderboardLimit int
	// Registry serves /metrics when set.
	Registry *prometheus.Registry
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	points         *points.Service
	metrics        *metrics.Metrics
	panelistStore  *store.PanelistStore
	panelistH      *handler.PanelistHandler
	surveyH        *handler.SurveyHandler
	offerH         *handler.OfferHandler
	contestH       *handler.ContestHandler
	adjustmentH    *handler.AdjustmentHandler
	verifier       auth.Verifier
	limiter        middleware.Limiter
	rateLimit      int
	rateWindow     time.Duration
	allowedOrigins []string
	registry       *prometheus.Registry
	logger         *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	var m *metrics.Metrics
	if opts.Registry != nil {
		m = metrics.New(opts.Registry)
	}

	svc := points.New(db,
		points.WithNotifier(hub),
		points.WithMetrics(m),
		points.WithLogger(logger),
	)

	panelistStore := store.NewPanelistStore(db)
	ledgerStore := store.NewLedgerStore(db)
	surveyStore := store.NewSurveyStore(db)
	offerStore := store.NewOfferStore(db)
	redemptionStore := store.NewRedemptionStore(db)
	contestStore := store.NewContestStore(db)

	limiter := opts.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter()
	}

	return &Server{
		db:             db,
		hub:            hub,
		points:         svc,
		metrics:        m,
		panelistStore:  panelistStore,
		panelistH:      handler.NewPanelistHandler(panelistStore, ledgerStore, surveyStore, redemptionStore, logger.With("component", "panelist")),
		surveyH:        handler.NewSurveyHandler(surveyStore, svc, hub, logger.With("component", "survey")),
		offerH:         handler.NewOfferHandler(offerStore, svc, hub, logger.With("component", "offer")),
		contestH:       handler.NewContestHandler(contestStore, svc, hub, opts.LeaderboardLimit, logger.With("component", "contest")),
		adjustmentH:    handler.NewAdjustmentHandler(svc, logger.With("component", "adjustment")),
		verifier:       opts.Verifier,
		limiter:        limiter,
		rateLimit:      opts.RateLimit,
		rateWindow:     opts.RateLimitWindow,
		allowedOrigins: opts.AllowedOrigins,
		registry:       opts.Registry,
		logger:         logger,
	}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Points returns the points service.
func (s *Server) Points() *points.Service {
	return s.points
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	if s.registry != nil {
		outerMux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.verifier, s.panelistStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))
	outerMux.Handle("GET /ws", authMiddleware(ws.HandleWebSocket(s.hub, s.allowedOrigins, s.logger.With("component", "websocket"))))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// rateLimited wraps the point-moving endpoints.
func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.limiter, middleware.CallerKey, s.rateLimit, s.rateWindow, s.logger.With("component", "ratelimit"))(h)
}

func admin(h http.Handler) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Panelists
	mux.HandleFunc("GET /api/me", s.panelistH.Me)
	mux.Handle("GET /api/panelists", admin(http.HandlerFunc(s.panelistH.List)))
	mux.Handle("POST /api/panelists", admin(http.HandlerFunc(s.panelistH.Create)))
	mux.HandleFunc("GET /api/panelists/{id}", s.panelistH.Get)
	mux.Handle("PUT /api/panelists/{id}", admin(http.HandlerFunc(s.panelistH.Update)))
	mux.HandleFunc("GET /api/panelists/{id}/balance", s.panelistH.Balance)
	mux.HandleFunc("GET /api/panelists/{id}/ledger", s.panelistH.Ledger)
	mux.HandleFunc("GET /api/panelists/{id}/completions", s.panelistH.Completions)
	mux.HandleFunc("GET /api/panelists/{id}/redemptions", s.panelistH.Redemptions)

	// Surveys
	mux.HandleFunc("GET /api/surveys", s.surveyH.List)
	mux.Handle("POST /api/surveys", admin(http.HandlerFunc(s.surveyH.Create)))
	mux.HandleFunc("GET /api/surveys/{id}", s.surveyH.Get)
	mux.Handle("PUT /api/surveys/{id}", admin(http.HandlerFunc(s.surveyH.Update)))
	mux.Handle("PUT /api/surveys/{id}/status", admin(http.HandlerFunc(s.surveyH.SetStatus)))
	mux.Handle("DELETE /api/surveys/{id}", admin(http.HandlerFunc(s.surveyH.Delete)))
	mux.Handle("POST /api/surveys/{id}/complete", s.rateLimited(s.surveyH.Complete))

	// Offers
	mux.HandleFunc("GET /api/offers", s.offerH.List)
	mux.Handle("POST /api/offers", admin(http.HandlerFunc(s.offerH.Create)))
	mux.Handle("PUT /api/offers/{id}", admin(http.HandlerFunc(s.offerH.Update)))
	mux.Handle("DELETE /api/offers/{id}", admin(http.HandlerFunc(s.offerH.Delete)))
	mux.Handle("POST /api/offers/{id}/redeem", s.rateLimited(s.offerH.Redeem))

	// Contests
	mux.HandleFunc("GET /api/contests", s.contestH.List)
	mux.Handle("POST /api/contests", admin(http.HandlerFunc(s.contestH.Create)))
	mux.HandleFunc("GET /api/contests/{id}", s.contestH.Get)
	mux.Handle("POST /api/contests/{id}/activate", admin(http.HandlerFunc(s.contestH.Activate)))
	mux.Handle("POST /api/contests/{id}/end", admin(http.HandlerFunc(s.contestH.End)))
	mux.Handle("POST /api/contests/{id}/join", s.rateLimited(s.contestH.Join))
	mux.HandleFunc("GET /api/contests/{id}/leaderboard", s.contestH.Leaderboard)
	mux.Handle("POST /api/contests/{id}/prizes", admin(s.rateLimited(s.contestH.AwardPrize)))

	// Operator adjustments
	mux.Handle("POST /api/admin/panelists/{id}/adjustments", admin(s.rateLimited(s.adjustmentH.Create)))
}
