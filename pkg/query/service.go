// Package query is the read surface of the registry: it resolves owners,
// parcels and execution results from the ledger's finalized state.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/golang-lru/v2"

	"github.com/relves/landreg/internal/storage"
	"github.com/relves/landreg/pkg/registry"
)

// resultCacheSize bounds the finalized-result cache. Results are immutable
// once recorded, so pure LRU with no TTL is enough.
const resultCacheSize = 10000

// Service answers read queries against the finalized state. It caches
// execution results by receipt; owner and parcel reads always hit the store
// since they change with every finalized transfer.
type Service struct {
	store   storage.StateStore
	results *lru.Cache[string, *registry.ExecutionResult]
	logger  *slog.Logger
}

// NewService creates a query service over a state store.
func NewService(store storage.StateStore, logger *slog.Logger) (*Service, error) {
	cache, err := lru.New[string, *registry.ExecutionResult](resultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		results: cache,
		logger:  logger.With("component", "query"),
	}, nil
}

// Owners lists every registered owner.
func (s *Service) Owners(ctx context.Context) ([]registry.Owner, error) {
	owners, err := s.store.Owners(ctx)
	if err != nil {
		return nil, registry.WrapError(registry.KindBackend, "list owners", err)
	}
	return owners, nil
}

// Owner resolves one owner by id.
func (s *Service) Owner(ctx context.Context, id uint64) (*registry.Owner, error) {
	owner, err := s.store.Owner(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, registry.NewError(registry.KindNotFound, fmt.Sprintf("owner %d not found", id))
		}
		return nil, registry.WrapError(registry.KindBackend, "load owner", err)
	}
	return owner, nil
}

// Objects lists every parcel, including deleted ones.
func (s *Service) Objects(ctx context.Context) ([]registry.Object, error) {
	objects, err := s.store.Objects(ctx)
	if err != nil {
		return nil, registry.WrapError(registry.KindBackend, "list objects", err)
	}
	return objects, nil
}

// Object resolves one parcel by id.
func (s *Service) Object(ctx context.Context, id uint64) (*registry.Object, error) {
	obj, err := s.store.Object(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, registry.NewError(registry.KindNotFound, fmt.Sprintf("object %d not found", id))
		}
		return nil, registry.WrapError(registry.KindBackend, "load object", err)
	}
	return obj, nil
}

// Result resolves the execution result of a submitted transaction by its
// receipt. Not-found covers both unknown receipts and transactions that are
// accepted but not yet finalized; callers poll until the result appears.
func (s *Service) Result(ctx context.Context, txHash string) (*registry.ExecutionResult, error) {
	r, err := registry.ParseReceipt(txHash)
	if err != nil {
		return nil, err
	}
	key := r.String()

	if res, ok := s.results.Get(key); ok {
		return res, nil
	}

	res, err := s.store.Result(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, registry.NewError(registry.KindNotFound, fmt.Sprintf("no result for transaction %s", key))
		}
		return nil, registry.WrapError(registry.KindBackend, "load result", err)
	}

	s.results.Add(key, res)
	return res, nil
}
