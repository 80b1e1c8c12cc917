package adapters

import (
	"strings"
	"sync"

	"github.com/railzwaylabs/bullion/internal/config"
	"github.com/railzwaylabs/bullion/internal/payment/domain"
)

// Registry builds providers lazily from their factories and keeps one
// instance per provider name.
type Registry struct {
	cfg       config.PaymentConfig
	factories map[string]domain.ProviderFactory

	mu        sync.Mutex
	providers map[string]domain.Provider
}

func NewRegistry(cfg config.PaymentConfig, factories ...domain.ProviderFactory) *Registry {
	r := &Registry{
		cfg:       cfg,
		factories: make(map[string]domain.ProviderFactory, len(factories)),
		providers: make(map[string]domain.Provider),
	}
	for _, f := range factories {
		r.factories[strings.ToLower(f.Provider())] = f
	}
	return r
}

func (r *Registry) Get(name string) (domain.Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[name]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	p, err := f.NewProvider(r.cfg)
	if err != nil {
		return nil, err
	}
	r.providers[name] = p
	return p, nil
}

// Default returns the provider new payments are charged through.
func (r *Registry) Default() (domain.Provider, error) {
	return r.Get(r.cfg.Provider)
}
