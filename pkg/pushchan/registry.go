// Package pushchan maintains calendar push-channel subscriptions: one
// active channel per closer, tracked in an in-memory registry, renewed
// before expiry by a background job.
package pushchan

import (
	"sync"
	"time"
)

// Subscription is one active push channel and the closer it watches.
type Subscription struct {
	ChannelID  string    `json:"channel_id"`
	ResourceID string    `json:"resource_id"`
	TenantID   string    `json:"client_id"`
	CloserID   string    `json:"closer_id"`
	CalendarID string    `json:"calendar_id"`
	Expiry     time.Time `json:"expiry"`
}

// Registry tracks active subscriptions by channel id. Safe for concurrent
// use. In-memory: a restart loses it, and the renewal job re-subscribes
// closers on the next pass.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]Subscription
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Subscription)}
}

// Put inserts or replaces a subscription.
func (r *Registry) Put(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[sub.ChannelID] = sub
}

// Get returns the subscription for a channel id.
func (r *Registry) Get(channelID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[channelID]
	return sub, ok
}

// Remove drops a subscription. Removing an unknown id is a no-op.
func (r *Registry) Remove(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, channelID)
}

// ByCloser returns the closer's subscription, if one is registered.
func (r *Registry) ByCloser(closerID string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.byID {
		if sub.CloserID == closerID {
			return sub, true
		}
	}
	return Subscription{}, false
}

// ExpiringBefore returns every subscription whose expiry falls before the
// cutoff.
func (r *Registry) ExpiringBefore(cutoff time.Time) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Subscription
	for _, sub := range r.byID {
		if sub.Expiry.Before(cutoff) {
			out = append(out, sub)
		}
	}
	return out
}

// All returns a snapshot of every subscription.
func (r *Registry) All() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscription, 0, len(r.byID))
	for _, sub := range r.byID {
		out = append(out, sub)
	}
	return out
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
