package pushchan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/gcal"
	"github.com/callscope/callscope/pkg/models"
)

type watchCall struct {
	calendarID string
	req        gcal.WatchRequest
}

type stopCall struct {
	channelID  string
	resourceID string
}

type fakeChannels struct {
	mu         sync.Mutex
	watches    []watchCall
	stops      []stopCall
	watchErr   error
	stopErr    error
	expiration time.Time
}

func (f *fakeChannels) Watch(_ context.Context, calendarID string, req gcal.WatchRequest) (*gcal.WatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.watches = append(f.watches, watchCall{calendarID: calendarID, req: req})
	return &gcal.WatchResult{
		ResourceID: fmt.Sprintf("res-%d", len(f.watches)),
		Expiration: f.expiration,
	}, nil
}

func (f *fakeChannels) StopChannel(_ context.Context, channelID, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stops = append(f.stops, stopCall{channelID: channelID, resourceID: resourceID})
	return nil
}

func (f *fakeChannels) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

type managerFixture struct {
	manager  *Manager
	channels *fakeChannels
	registry *Registry
	posts    *atomic.Int32
}

func newManagerFixture(t *testing.T, cfg *config.PushConfig) *managerFixture {
	t.Helper()

	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1234.5678"}`))
	}))
	t.Cleanup(server.Close)

	channels := &fakeChannels{expiration: time.Now().Add(7 * 24 * time.Hour)}
	registry := NewRegistry()
	manager := NewManager(Deps{
		Channels: channels,
		Registry: registry,
		Alerts:   alerts.NewServiceWithClient(alerts.NewClientWithAPIURL("xoxb-test", "C123", server.URL+"/")),
		Config:   cfg,
	})
	return &managerFixture{manager: manager, channels: channels, registry: registry, posts: &posts}
}

func pushCloser() *models.Closer {
	return &models.Closer{
		ID:       "closer-1",
		TenantID: "tenant-1",
		Name:     "Tyler Ray",
		Email:    "tyler@acme.io",
		Status:   models.StatusActive,
	}
}

func TestSubscribeOpensChannel(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})

	sub, err := fx.manager.Subscribe(context.Background(), pushCloser())

	require.NoError(t, err)
	assert.NotEmpty(t, sub.ChannelID)
	assert.Equal(t, "res-1", sub.ResourceID)
	assert.Equal(t, "tenant-1", sub.TenantID)
	assert.Equal(t, "closer-1", sub.CloserID)
	assert.Equal(t, "tyler@acme.io", sub.CalendarID)
	assert.Equal(t, fx.channels.expiration, sub.Expiry)

	require.Len(t, fx.channels.watches, 1)
	watch := fx.channels.watches[0]
	assert.Equal(t, "tyler@acme.io", watch.calendarID)
	assert.Equal(t, "tenant-1", watch.req.Token)
	assert.Equal(t, "https://hooks.callscope.io/webhooks/calendar", watch.req.Address)
	assert.Equal(t, 7*24*time.Hour, watch.req.TTL)

	got, ok := fx.registry.Get(sub.ChannelID)
	require.True(t, ok)
	assert.Equal(t, *sub, got)
}

func TestSubscribeReplacesExistingChannel(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})

	first, err := fx.manager.Subscribe(context.Background(), pushCloser())
	require.NoError(t, err)

	second, err := fx.manager.Subscribe(context.Background(), pushCloser())
	require.NoError(t, err)
	assert.NotEqual(t, first.ChannelID, second.ChannelID)

	require.Len(t, fx.channels.stops, 1)
	assert.Equal(t, first.ChannelID, fx.channels.stops[0].channelID)

	assert.Equal(t, 1, fx.registry.Len())
	_, ok := fx.registry.Get(first.ChannelID)
	assert.False(t, ok)
}

func TestSubscribeRequiresCallbackURL(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{})

	_, err := fx.manager.Subscribe(context.Background(), pushCloser())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "callback URL")
	assert.Zero(t, fx.registry.Len())
}

func TestSubscribeWatchFailure(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	fx.channels.watchErr = errors.New("quota exceeded")

	_, err := fx.manager.Subscribe(context.Background(), pushCloser())

	require.Error(t, err)
	assert.Zero(t, fx.registry.Len())
}

func TestSubscribeDefaultsMissingExpiry(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	fx.channels.expiration = time.Time{}

	sub, err := fx.manager.Subscribe(context.Background(), pushCloser())

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(defaultChannelTTL), sub.Expiry, time.Minute)
}

func TestUnsubscribe(t *testing.T) {
	t.Run("stops and removes", func(t *testing.T) {
		fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
		sub, err := fx.manager.Subscribe(context.Background(), pushCloser())
		require.NoError(t, err)

		require.NoError(t, fx.manager.Unsubscribe(context.Background(), sub.ChannelID))

		require.Len(t, fx.channels.stops, 1)
		assert.Equal(t, sub.ResourceID, fx.channels.stops[0].resourceID)
		assert.Zero(t, fx.registry.Len())
	})

	t.Run("unknown channel counts as stopped", func(t *testing.T) {
		fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})

		assert.NoError(t, fx.manager.Unsubscribe(context.Background(), "chan-unknown"))
		assert.Empty(t, fx.channels.stops)
	})

	t.Run("stop failure keeps registration", func(t *testing.T) {
		fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
		sub, err := fx.manager.Subscribe(context.Background(), pushCloser())
		require.NoError(t, err)
		fx.channels.stopErr = errors.New("provider down")

		require.Error(t, fx.manager.Unsubscribe(context.Background(), sub.ChannelID))
		assert.Equal(t, 1, fx.registry.Len())
	})
}

func TestUnsubscribeCloser(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	_, err := fx.manager.Subscribe(context.Background(), pushCloser())
	require.NoError(t, err)

	require.NoError(t, fx.manager.UnsubscribeCloser(context.Background(), "closer-1"))
	assert.Zero(t, fx.registry.Len())

	require.NoError(t, fx.manager.UnsubscribeCloser(context.Background(), "closer-unknown"))
}

func TestRenewReplacesChannel(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	old, err := fx.manager.Subscribe(context.Background(), pushCloser())
	require.NoError(t, err)

	fresh, err := fx.manager.Renew(context.Background(), *old)

	require.NoError(t, err)
	assert.NotEqual(t, old.ChannelID, fresh.ChannelID)
	assert.Equal(t, old.CloserID, fresh.CloserID)
	assert.Equal(t, old.CalendarID, fresh.CalendarID)

	require.Len(t, fx.channels.stops, 1)
	assert.Equal(t, old.ChannelID, fx.channels.stops[0].channelID)

	assert.Equal(t, 1, fx.registry.Len())
	_, ok := fx.registry.Get(fresh.ChannelID)
	assert.True(t, ok)
}

func TestRenewKeepsOldEntryOnFailure(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	old, err := fx.manager.Subscribe(context.Background(), pushCloser())
	require.NoError(t, err)
	fx.channels.watchErr = errors.New("quota exceeded")

	_, err = fx.manager.Renew(context.Background(), *old)

	require.Error(t, err)
	_, ok := fx.registry.Get(old.ChannelID)
	assert.True(t, ok)
}

func TestRenewExpiring(t *testing.T) {
	t.Run("renews only subscriptions within lookahead", func(t *testing.T) {
		fx := newManagerFixture(t, &config.PushConfig{
			CallbackURL:    "https://hooks.callscope.io/webhooks/calendar",
			RenewLookahead: 24 * time.Hour,
		})
		fx.registry.Put(testSub("chan-soon", "closer-1", time.Now().Add(time.Hour)))
		fx.registry.Put(testSub("chan-later", "closer-2", time.Now().Add(72*time.Hour)))

		fx.manager.RenewExpiring(context.Background())

		assert.Equal(t, 1, fx.channels.watchCount())
		_, ok := fx.registry.Get("chan-soon")
		assert.False(t, ok)
		_, ok = fx.registry.Get("chan-later")
		assert.True(t, ok)
		assert.Equal(t, 2, fx.registry.Len())
	})

	t.Run("failed renewal raises an alert", func(t *testing.T) {
		fx := newManagerFixture(t, &config.PushConfig{
			CallbackURL:    "https://hooks.callscope.io/webhooks/calendar",
			RenewLookahead: 24 * time.Hour,
		})
		fx.registry.Put(testSub("chan-soon", "closer-1", time.Now().Add(time.Hour)))
		fx.channels.watchErr = errors.New("quota exceeded")

		fx.manager.RenewExpiring(context.Background())

		assert.Equal(t, int32(1), fx.posts.Load())
		_, ok := fx.registry.Get("chan-soon")
		assert.True(t, ok)
	})
}

func TestManagerStartRunsImmediatePass(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{
		CallbackURL:    "https://hooks.callscope.io/webhooks/calendar",
		RenewLookahead: 24 * time.Hour,
		RenewInterval:  time.Hour,
	})
	fx.registry.Put(testSub("chan-soon", "closer-1", time.Now().Add(time.Hour)))

	fx.manager.Start(context.Background())
	defer fx.manager.Stop()

	assert.Eventually(t, func() bool {
		return fx.channels.watchCount() >= 1
	}, time.Second, 10*time.Millisecond)
}

func TestManagerStartWithoutCallbackURL(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{})

	fx.manager.Start(context.Background())
	fx.manager.Stop()

	assert.Zero(t, fx.channels.watchCount())
}

func TestManagerStopWithoutStart(t *testing.T) {
	fx := newManagerFixture(t, &config.PushConfig{CallbackURL: "https://hooks.callscope.io/webhooks/calendar"})
	assert.NotPanics(t, func() { fx.manager.Stop() })
}
