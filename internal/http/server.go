package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"taxprep/internal/cache"
	"taxprep/internal/core"
	"taxprep/internal/middleware/ratelimit"
	"taxprep/internal/middleware/security"
	"taxprep/internal/middleware/trace"
	"taxprep/internal/services"
)

type Server struct {
	http.Server
	service *services.ReturnService

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	// Calculation results are cached per record version; any write bumps the
	// version, so stale entries simply stop being requested.
	resultsCache *cache.LRUCache[core.CalculatedResults]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, service *services.ReturnService) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		service:      service,
		rateLimiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:     detector,
		tracer:       trace.NewMiddleware(detector.ExtractClientIP),
		resultsCache: cache.NewLRUCache[core.CalculatedResults](200, 5*time.Minute),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.resultsCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/filing-status", s.handleResolveFilingStatus)

	mux.HandleFunc("POST /api/returns", s.handleCreateReturn)
	mux.HandleFunc("GET /api/returns", s.handleListReturns)
	mux.HandleFunc("GET /api/returns/{id}", s.handleGetReturn)
	mux.HandleFunc("DELETE /api/returns/{id}", s.handleDeleteReturn)

	mux.HandleFunc("PUT /api/returns/{id}/personal", s.handleUpdatePersonal)
	mux.HandleFunc("PUT /api/returns/{id}/income", s.handleUpdateIncome)
	mux.HandleFunc("PUT /api/returns/{id}/adjustments", s.handleUpdateAdjustments)
	mux.HandleFunc("PUT /api/returns/{id}/deductions", s.handleUpdateDeductions)
	mux.HandleFunc("PUT /api/returns/{id}/credits", s.handleUpdateCredits)
	mux.HandleFunc("PUT /api/returns/{id}/payments", s.handleUpdatePayments)
	mux.HandleFunc("POST /api/returns/{id}/import/brokerage", s.handleImportBrokerage)

	mux.HandleFunc("POST /api/returns/{id}/calculate", s.handleCalculate)
	mux.HandleFunc("POST /api/returns/{id}/complete", s.handleComplete)
	mux.HandleFunc("GET /api/returns/{id}/results", s.handleGetResults)

	// Middleware chain: tracing wraps everything, then security headers,
	// suspicious-request detection, and rate limiting.
	headers := security.NewHeadersMiddleware(apiHeadersConfig())
	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, nil)

	s.Server.Handler = s.tracer.Middleware(headers.Middleware(detector.Middleware(limited(mux))))

	return s
}

// apiHeadersConfig trims the browser-oriented CSP down to what a JSON API
// needs.
func apiHeadersConfig() security.HeadersConfig {
	cfg := security.DefaultHeadersConfig()
	cfg.CSP = "default-src 'none'; frame-ancestors 'none'"
	return cfg
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// The service reads from the store on every request; a cheap list proves
	// the backend is reachable.
	if _, err := s.service.ListReturns(r.Context(), 0); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.tracer.GetMetrics()
	rlMetrics := s.rateLimiter.GetMetrics()
	secMetrics := s.detector.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "http_requests_total %d\n", traceMetrics.TotalRequests)
	fmt.Fprintf(w, "http_response_time_us %d\n", traceMetrics.AverageResponseTime)
	fmt.Fprintf(w, "ratelimit_tracked_clients %d\n", rlMetrics.ClientCount)
	fmt.Fprintf(w, "security_suspicious_requests %d\n", secMetrics.SuspiciousRequests)
	fmt.Fprintf(w, "results_cache_entries %d\n", s.resultsCache.Size())
}
