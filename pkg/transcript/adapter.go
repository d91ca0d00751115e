// Package transcript ingests finished-call recordings: webhook payloads
// are normalized by a provider adapter, matched to an existing call, and
// drive the Show/Ghosted transition plus the AI pipeline.
package transcript

import (
	"sync"

	"github.com/callscope/callscope/pkg/models"
)

// Adapter normalizes one provider's webhook payload into canonical form.
type Adapter interface {
	// Name returns the provider key used in webhook paths and stored on
	// call records.
	Name() string

	// Normalize parses a raw webhook body. A payload that announces a
	// meeting without its transcript yields Partial=true.
	Normalize(payload []byte) (*models.CanonicalTranscript, error)
}

// Registry holds the configured transcript adapters by provider key.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}
