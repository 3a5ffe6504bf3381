// Package server is the HTTP gateway of the registry: it validates request
// parameters, builds and signs transactions from the caller's cookie-held
// identity, submits them to the ledger, and serves reads from the query
// service. All responses are JSON; all failures are rendered as {"message"}.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relves/landreg/pkg/registry"
)

// apiPrefix mirrors the original mount: version path, service prefix and
// instance namespace.
const apiPrefix = "/v1/registry/obm/"

// Submitter accepts signed transactions for asynchronous finalization.
type Submitter interface {
	Submit(ctx context.Context, tx *registry.Transaction) (registry.Receipt, error)
}

// Queries is the read surface the gateway serves from.
type Queries interface {
	Owners(ctx context.Context) ([]registry.Owner, error)
	Owner(ctx context.Context, id uint64) (*registry.Owner, error)
	Objects(ctx context.Context) ([]registry.Object, error)
	Object(ctx context.Context, id uint64) (*registry.Object, error)
	Result(ctx context.Context, txHash string) (*registry.ExecutionResult, error)
}

// Server routes registry HTTP traffic. Handlers share only the submitter and
// the query service; per-request state lives in the cookie jar.
type Server struct {
	node    Submitter
	queries Queries
	logger  *slog.Logger
	metrics *httpMetrics
	limiter *mapLimiter
	cfg     *Config
}

// New creates the gateway over a ledger submitter and a query service.
func New(node Submitter, queries Queries, opts ...Option) *Server {
	cfg := applyOptions(opts...)
	logger := cfg.Logger.With("component", "gateway")
	if cfg.Origin != "" {
		logger.Info("cross-origin allowance configured but not enforced", "origin", cfg.Origin)
	}
	return &Server{
		node:    node,
		queries: queries,
		logger:  logger,
		metrics: newHTTPMetrics(cfg.Registry),
		limiter: newMapLimiter(cfg.RateRPS, cfg.RateBurst, cfg.RateIdleTTL),
		cfg:     cfg,
	}
}

// Handler builds the routed handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Preflight requests get an empty success response on every path.
	mux.HandleFunc("OPTIONS /", s.instrument("options", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	mux.HandleFunc("POST "+apiPrefix+"register", s.instrument("register", s.handleRegister))
	mux.HandleFunc("GET "+apiPrefix+"result/{tx}", s.instrument("result", s.handleResult))

	mux.HandleFunc("GET "+apiPrefix+"owners", s.instrument("owners_list", s.handleOwners))
	mux.HandleFunc("GET "+apiPrefix+"owners/{id}", s.instrument("owner_get", s.handleOwner))
	mux.HandleFunc("POST "+apiPrefix+"owners", s.instrument("owner_create", s.handleCreateOwner))

	mux.HandleFunc("GET "+apiPrefix+"objects", s.instrument("objects_list", s.handleObjects))
	mux.HandleFunc("GET "+apiPrefix+"objects/{id}", s.instrument("object_get", s.handleObject))
	mux.HandleFunc("POST "+apiPrefix+"objects", s.instrument("object_create", s.handleCreateObject))
	mux.HandleFunc("POST "+apiPrefix+"objects/transfer", s.instrument("object_transfer", s.handleTransferObject))
	mux.HandleFunc("DELETE "+apiPrefix+"objects/{id}", s.instrument("object_remove", s.handleRemoveObject))
	mux.HandleFunc("POST "+apiPrefix+"objects/restore", s.instrument("object_restore", s.handleRestoreObject))

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))

	return s.rateLimit(mux)
}
