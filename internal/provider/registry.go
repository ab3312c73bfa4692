package provider

import (
	"fmt"
	"sync"

	"github.com/xelth-com/proxyfleet/internal/models"
)

// Registry maps provider codes to their adapters. It is built once at
// startup and handed to the lifecycle core; there is no process-wide
// instance.
type Registry struct {
	mu      sync.RWMutex
	clients map[models.Provider]Client
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[models.Provider]Client)}
}

// Register registers a provider adapter
func (r *Registry) Register(client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := client.Code()
	if !code.Valid() {
		return fmt.Errorf("unknown provider code %q", code)
	}
	if _, exists := r.clients[code]; exists {
		return fmt.Errorf("provider %s is already registered", code)
	}

	r.clients[code] = client
	return nil
}

// Get returns the adapter for a provider code
func (r *Registry) Get(code models.Provider) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, exists := r.clients[code]
	if !exists {
		return nil, fmt.Errorf("provider %s not registered", code)
	}
	return client, nil
}

// Codes returns the registered provider codes
func (r *Registry) Codes() []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]models.Provider, 0, len(r.clients))
	for _, p := range models.Providers {
		if _, ok := r.clients[p]; ok {
			codes = append(codes, p)
		}
	}
	return codes
}
