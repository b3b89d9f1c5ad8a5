// Package http exposes the ledger operations as a JSON API for the approval
// workflow and the reporting module.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"housingledger/internal/account"
	"housingledger/internal/cache"
	"housingledger/internal/core"
	"housingledger/internal/housing"
	"housingledger/internal/ledger"
	"housingledger/internal/log"
	"housingledger/internal/middleware/ratelimit"
	"housingledger/internal/middleware/security"
	"housingledger/internal/middleware/trace"
	"housingledger/internal/pool"
	"housingledger/internal/services"
	"housingledger/internal/summary"

	"github.com/go-playground/validator/v10"
)

// Deps are the operations the API serves.
type Deps struct {
	Ledger    *ledger.Ledger
	Pool      *pool.Account
	Accounts  *account.Projector
	Housing   *housing.Calculator
	Summaries *summary.Summarizer
	Billing   *services.BillingProcessor
	Intake    *services.IntakeService
	// Ready reports whether storage is reachable; nil means always ready.
	Ready func(context.Context) error
}

type Options struct {
	RateLimitPerMinute int
	// SummaryCacheTTL of zero disables summary caching.
	SummaryCacheTTL time.Duration
}

type Server struct {
	http.Server
	deps     Deps
	validate *validator.Validate
	now      func() time.Time

	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	summaries cache.Cache[[]core.CountySummary]
	caches    *cache.Manager

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	ips := security.NewClientIPResolver()

	s := &Server{
		deps:     deps,
		validate: newValidator(),
		now:      time.Now,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
			ExemptSafeMethods: true,
		}),
		tracer: trace.NewMiddleware(ips.ClientIP),
		caches: cache.NewManager(),
	}
	if opts.SummaryCacheTTL > 0 {
		lru := cache.NewLRUCache[[]core.CountySummary](256, opts.SummaryCacheTTL)
		s.summaries = lru
		s.caches.Register(lru)
		s.caches.StartCleanup(opts.SummaryCacheTTL * 10)
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /v1/transactions", s.write(s.handleAppendTransaction))
	mux.HandleFunc("GET /v1/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGetTransaction)

	mux.HandleFunc("GET /v1/pools/summary", s.handlePoolSummaryAll)
	mux.HandleFunc("POST /v1/pools/{county}/deposits", s.write(s.handlePoolDeposit))
	mux.HandleFunc("POST /v1/pools/{county}/withdrawals", s.write(s.handlePoolWithdraw))
	mux.HandleFunc("GET /v1/pools/{county}/balance", s.handlePoolBalance)
	mux.HandleFunc("GET /v1/pools/{county}/summary", s.handlePoolSummary)
	mux.HandleFunc("GET /v1/pools/{county}/entries", s.handlePoolEntries)
	mux.HandleFunc("POST /v1/pools/{county}/reconcile", s.handlePoolReconcile)

	mux.HandleFunc("PUT /v1/clients/{id}", s.write(s.handleUpsertClient))
	mux.HandleFunc("GET /v1/clients/{id}", s.handleGetClient)
	mux.HandleFunc("GET /v1/clients/{id}/balance", s.handleClientBalance)

	mux.HandleFunc("POST /v1/housing-records", s.write(s.handleCreateHousingRecord))
	mux.HandleFunc("GET /v1/housing-records", s.handleListHousingRecords)
	mux.HandleFunc("GET /v1/housing-records/running-total", s.handleRunningTotal)
	mux.HandleFunc("GET /v1/housing-records/{id}", s.handleGetHousingRecord)
	mux.HandleFunc("PATCH /v1/housing-records/{id}", s.write(s.handleUpdateHousingRecord))
	mux.HandleFunc("POST /v1/housing-records/{id}/contribution", s.write(s.handlePostContribution))

	mux.HandleFunc("GET /v1/counties/summaries", s.handleSummarizeAll)
	mux.HandleFunc("GET /v1/counties/{county}/summary", s.handleSummarize)

	mux.HandleFunc("POST /v1/bills", s.write(s.handleCreateBill))
	mux.HandleFunc("GET /v1/bills/{id}", s.handleGetBill)
	mux.HandleFunc("POST /v1/bills/{id}/deactivate", s.write(s.handleDeactivateBill))

	mux.HandleFunc("POST /v1/county-payments", s.write(s.handleCountyPayment))
}

// write wraps a mutating handler so cached read models are dropped once it
// succeeds.
func (s *Server) write(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rw, r)
		if rw.status < 400 && s.summaries != nil {
			s.summaries.Purge()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Shutdown drains in-flight requests and stops background sweepers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
		m := s.tracer.GetMetrics()
		log.For(log.ComponentHTTP).InfoContext(ctx, "HTTP server stopped", "requests_served", m.TotalRequests)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			log.For(log.ComponentHTTP).ErrorContext(ctx, "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "storage unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
