package calendar

import (
	"context"
	"sync"
	"time"

	"github.com/callscope/callscope/pkg/models"
)

// Provider lists changed calendar events for one closer's calendar,
// already normalized to canonical form. Implementations live in
// provider-specific packages.
type Provider interface {
	// Name returns the provider key stored on tenants (e.g. "google").
	Name() string

	// ChangedEvents returns events modified since the given time,
	// including deleted ones. calendarID is the closer's calendar,
	// conventionally their email address.
	ChangedEvents(ctx context.Context, calendarID string, since time.Time) ([]models.CanonicalEvent, error)
}

// Registry holds the configured calendar providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// DedupeEvents collapses a multi-calendar fetch to one copy per event id,
// keeping the most recently updated. The same event appears on every
// attending closer's calendar.
func DedupeEvents(events []models.CanonicalEvent) []models.CanonicalEvent {
	byID := make(map[string]models.CanonicalEvent, len(events))
	order := make([]string, 0, len(events))
	for _, evt := range events {
		existing, seen := byID[evt.EventID]
		if !seen {
			byID[evt.EventID] = evt
			order = append(order, evt.EventID)
			continue
		}
		if evt.Updated.After(existing.Updated) {
			byID[evt.EventID] = evt
		}
	}
	out := make([]models.CanonicalEvent, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
