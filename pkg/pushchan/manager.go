package pushchan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/gcal"
	"github.com/callscope/callscope/pkg/models"
)

const (
	defaultChannelTTL     = 7 * 24 * time.Hour
	defaultRenewLookahead = 24 * time.Hour
	defaultRenewInterval  = 1 * time.Hour
)

// ChannelAPI is the provider half of the channel lifecycle.
// *gcal.Client satisfies this.
type ChannelAPI interface {
	Watch(ctx context.Context, calendarID string, req gcal.WatchRequest) (*gcal.WatchResult, error)
	StopChannel(ctx context.Context, channelID, resourceID string) error
}

// Deps wires the manager.
type Deps struct {
	Channels ChannelAPI
	Registry *Registry
	Alerts   *alerts.Service
	Config   *config.PushConfig
}

// Manager owns the subscription lifecycle: subscribe, unsubscribe, renew,
// and the periodic renewal job.
type Manager struct {
	channels ChannelAPI
	registry *Registry
	alerts   *alerts.Service
	cfg      *config.PushConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(deps Deps) *Manager {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.PushConfig{}
	}
	return &Manager{
		channels: deps.Channels,
		registry: deps.Registry,
		alerts:   deps.Alerts,
		cfg:      cfg,
		logger:   slog.With("component", "pushchan"),
	}
}

// Subscribe opens a push channel on the closer's calendar. An existing
// subscription for the closer is stopped first, keeping one active
// channel per closer.
func (m *Manager) Subscribe(ctx context.Context, closer *models.Closer) (*Subscription, error) {
	if m.cfg.CallbackURL == "" {
		return nil, fmt.Errorf("push callback URL not configured")
	}

	if old, ok := m.registry.ByCloser(closer.ID); ok {
		if err := m.Unsubscribe(ctx, old.ChannelID); err != nil {
			m.logger.Warn("Stopping superseded channel failed",
				"channel_id", old.ChannelID, "closer_id", closer.ID, "error", err)
		}
	}

	sub, err := m.open(ctx, closer.TenantID, closer.ID, closer.Email)
	if err != nil {
		return nil, err
	}

	m.logger.Info("Push channel opened",
		"tenant_id", sub.TenantID,
		"closer_id", sub.CloserID,
		"channel_id", sub.ChannelID,
		"expiry", sub.Expiry)
	return sub, nil
}

// Unsubscribe stops a channel and drops it from the registry. An unknown
// channel id counts as already stopped.
func (m *Manager) Unsubscribe(ctx context.Context, channelID string) error {
	sub, ok := m.registry.Get(channelID)
	if !ok {
		return nil
	}
	if err := m.channels.StopChannel(ctx, sub.ChannelID, sub.ResourceID); err != nil {
		return fmt.Errorf("unsubscribe closer %s: %w", sub.CloserID, err)
	}
	m.registry.Remove(channelID)
	m.logger.Info("Push channel stopped",
		"tenant_id", sub.TenantID, "closer_id", sub.CloserID, "channel_id", channelID)
	return nil
}

// UnsubscribeCloser stops the closer's channel, if one is registered.
func (m *Manager) UnsubscribeCloser(ctx context.Context, closerID string) error {
	sub, ok := m.registry.ByCloser(closerID)
	if !ok {
		return nil
	}
	return m.Unsubscribe(ctx, sub.ChannelID)
}

// Renew replaces a subscription with a fresh channel. The old channel is
// stopped first; when opening the replacement fails, the old entry stays
// registered so the next renewal pass retries it.
func (m *Manager) Renew(ctx context.Context, sub Subscription) (*Subscription, error) {
	if err := m.channels.StopChannel(ctx, sub.ChannelID, sub.ResourceID); err != nil {
		m.logger.Warn("Stopping channel before renewal failed",
			"channel_id", sub.ChannelID, "closer_id", sub.CloserID, "error", err)
	}

	fresh, err := m.open(ctx, sub.TenantID, sub.CloserID, sub.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("renew channel for closer %s: %w", sub.CloserID, err)
	}

	m.registry.Remove(sub.ChannelID)
	m.logger.Info("Push channel renewed",
		"tenant_id", fresh.TenantID,
		"closer_id", fresh.CloserID,
		"channel_id", fresh.ChannelID,
		"expiry", fresh.Expiry)
	return fresh, nil
}

func (m *Manager) open(ctx context.Context, tenantID, closerID, calendarID string) (*Subscription, error) {
	req := gcal.WatchRequest{
		ChannelID: uuid.NewString(),
		Token:     tenantID,
		Address:   m.cfg.CallbackURL,
		TTL:       defaultChannelTTL,
	}
	result, err := m.channels.Watch(ctx, calendarID, req)
	if err != nil {
		return nil, err
	}

	expiry := result.Expiration
	if expiry.IsZero() {
		expiry = time.Now().Add(defaultChannelTTL)
	}

	sub := Subscription{
		ChannelID:  req.ChannelID,
		ResourceID: result.ResourceID,
		TenantID:   tenantID,
		CloserID:   closerID,
		CalendarID: calendarID,
		Expiry:     expiry,
	}
	m.registry.Put(sub)
	return &sub, nil
}

// Start launches the renewal job. Without a callback URL no channel can
// be opened, so the job stays off.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.CallbackURL == "" {
		m.logger.Info("Push channel renewal disabled: no callback URL configured")
		return
	}
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.run(ctx)

	m.logger.Info("Push channel renewal started",
		"interval", m.interval(), "lookahead", m.lookahead())
}

// Stop halts the renewal job and waits for an in-flight pass to finish.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.logger.Info("Push channel renewal stopped")
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	m.RenewExpiring(ctx)

	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RenewExpiring(ctx)
		}
	}
}

// RenewExpiring renews every subscription expiring within the lookahead
// window. Exported so the admin surface can trigger a pass.
func (m *Manager) RenewExpiring(ctx context.Context) {
	expiring := m.registry.ExpiringBefore(time.Now().Add(m.lookahead()))
	if len(expiring) == 0 {
		return
	}

	renewed := 0
	for _, sub := range expiring {
		if _, err := m.Renew(ctx, sub); err != nil {
			m.logger.Error("Push channel renewal failed",
				"tenant_id", sub.TenantID,
				"closer_id", sub.CloserID,
				"channel_id", sub.ChannelID,
				"error", err)
			m.alerts.Notify(ctx, alerts.Alert{
				Severity:        models.SeverityHigh,
				Component:       "pushchan",
				TenantID:        sub.TenantID,
				Summary:         "Push channel renewal failed",
				Detail:          fmt.Sprintf("closer %s channel %s", sub.CloserID, sub.ChannelID),
				Error:           err.Error(),
				SuggestedAction: "Check the Google credential; calendar changes for this closer are not flowing until the channel reopens",
			})
			continue
		}
		renewed++
	}

	m.logger.Info("Renewal pass finished", "expiring", len(expiring), "renewed", renewed)
}

func (m *Manager) interval() time.Duration {
	if m.cfg.RenewInterval > 0 {
		return m.cfg.RenewInterval
	}
	return defaultRenewInterval
}

func (m *Manager) lookahead() time.Duration {
	if m.cfg.RenewLookahead > 0 {
		return m.cfg.RenewLookahead
	}
	return defaultRenewLookahead
}
