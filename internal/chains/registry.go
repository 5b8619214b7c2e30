package chains

import (
	"fmt"
	"sync"

	"custody-service/internal/domain"
	"custody-service/internal/xerrors"
)

type Registry struct {
	adapters map[domain.ChainName]domain.ChainAdapter
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.ChainName]domain.ChainAdapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter domain.ChainAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get retrieves an adapter by ledger tag.
func (r *Registry) Get(name domain.ChainName) (domain.ChainAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", xerrors.ErrChainNotSupported, name)
	}

	return adapter, nil
}

// List returns all registered ledger tags.
func (r *Registry) List() []domain.ChainName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]domain.ChainName, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}

	return names
}
