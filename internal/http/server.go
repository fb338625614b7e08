package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"travelai/internal/core"
	"travelai/internal/log"
	"travelai/internal/settlement"
)

// SettlementAPI is the service surface the handlers drive.
type SettlementAPI interface {
	RecordExpenditure(ctx context.Context, sessionID string, e core.Expenditure) (core.Expenditure, settlement.Distribution, error)
	DeleteExpenditure(ctx context.Context, sessionID, expenditureID string) error
	SetAllocations(ctx context.Context, sessionID, expenditureID, lineItemID string, userIDs []string) (settlement.Distribution, error)
	SetLinePrice(ctx context.Context, sessionID, expenditureID, lineItemID string, price core.ExactAmount) (settlement.Distribution, error)
	AddParticipant(ctx context.Context, sessionID string, p core.Participant) error
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
	Distribution(ctx context.Context, sessionID, expenditureID string) (core.Expenditure, settlement.Distribution, error)
	Summary(ctx context.Context, sessionID string, categories []core.Category) (core.SessionSummary, error)
}

type Server struct {
	http.Server
	svc           SettlementAPI
	logger        *log.Logger
	defaultLocale string
	ready         func(context.Context) error
	writeLimit    int
	rateLimiter   *rateLimiter
	metrics       *securityMetrics

	shutdownOnce sync.Once
}

type ServerOption func(*Server)

// WithDefaultLocale sets the locale used when a request names none.
func WithDefaultLocale(locale string) ServerOption {
	return func(s *Server) { s.defaultLocale = locale }
}

// WithReadinessCheck makes /readyz report failures of check.
func WithReadinessCheck(check func(context.Context) error) ServerOption {
	return func(s *Server) { s.ready = check }
}

// WithWriteLimit caps mutating requests per client IP per minute.
func WithWriteLimit(perMinute int) ServerOption {
	return func(s *Server) { s.writeLimit = perMinute }
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, svc SettlementAPI, logger *log.Logger, opts ...ServerOption) *Server {
	s := &Server{
		svc:           svc,
		logger:        logger.WithComponent(log.ComponentHTTP),
		defaultLocale: "en-US",
		metrics:       &securityMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rateLimiter = newRateLimiter(s.writeLimit)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(func(r *http.Request) string {
		return chimiddleware.GetReqID(r.Context())
	}))
	r.Use(log.AccessLog)
	r.Use(securityHeaders(s.metrics))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimiter.middleware(s.metrics))

		r.Post("/split/even", s.handleEvenSplit)
		r.Post("/split/itemized", s.handleItemizedSplit)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Post("/participants", s.handleAddParticipant)
			r.Delete("/participants/{userID}", s.handleRemoveParticipant)

			r.Post("/expenditures", s.handleRecordExpenditure)
			r.Route("/expenditures/{expenditureID}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteExpenditure)
				r.Get("/distribution", s.handleDistribution)
				r.Put("/items/{itemID}/allocations", s.handleSetAllocations)
				r.Put("/items/{itemID}/price", s.handleSetLinePrice)
			})

			r.Get("/summary", s.handleSummary)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
