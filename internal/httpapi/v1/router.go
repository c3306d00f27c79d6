// Package v1 wires the HTTP surface of the ledger service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"context"
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/tinoosan/pocketledger/internal/service/account"
	"github.com/tinoosan/pocketledger/internal/service/transaction"
	"github.com/tinoosan/pocketledger/internal/service/user"
	"github.com/tinoosan/pocketledger/internal/storage"
)

// TokenResolver maps a bearer token to the id of a live user.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// Deps are the collaborators the HTTP layer delegates to.
type Deps struct {
	Accounts     account.Service
	Transactions transaction.Service
	Users        user.Service
	Auth         TokenResolver
	// Ready is optional; /readyz reports 200 when nil.
	Ready       storage.ReadyChecker
	Logger      *slog.Logger
	CORSOrigins []string
}

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts     account.Service
	transactions transaction.Service
	users        user.Service
	auth         TokenResolver
	ready        storage.ReadyChecker
	log          *slog.Logger
	rt           *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Token"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	s := &Server{
		accounts:     d.Accounts,
		transactions: d.Transactions,
		users:        d.Users,
		auth:         d.Auth,
		ready:        d.Ready,
		log:          logger,
		rt:           r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())

	s.rt.Route("/v1", func(r chi.Router) {
		r.Get("/dictionary/categories", s.getCategoriesDictionary)
		r.With(s.validatePostUser()).Post("/users", s.postUser)
		r.With(s.validateLogin()).Post("/users/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Delete("/users/me", s.deleteMe)
			// Accounts
			r.With(s.validatePostAccount()).Post("/accounts", s.postAccount)
			r.Get("/accounts", s.listAccounts)
			r.Get("/accounts/{id}", s.getAccount)
			r.Get("/accounts/{id}/ledger", s.getAccountLedger)
			r.Delete("/accounts/{id}", s.deleteAccount)
			// Transactions
			r.With(s.validateIncome()).Post("/transactions/income", s.postIncome)
			r.With(s.validatePay()).Post("/transactions/pay", s.postPay)
			r.With(s.validateListTransactions()).Get("/transactions", s.listTransactions)
		})
	})
}
