package tenants

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/fathom"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/pushchan"
	"github.com/callscope/callscope/pkg/warehouse"
)

type fakeTenantStore struct {
	byID      map[string]*models.Tenant
	inserted  []*models.Tenant
	insertErr error
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{byID: map[string]*models.Tenant{}}
}

func (f *fakeTenantStore) Insert(_ context.Context, tenant *models.Tenant) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, tenant)
	f.byID[tenant.ID] = tenant
	return nil
}

func (f *fakeTenantStore) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, warehouse.ErrNotFound
}

type statusCall struct {
	closerID string
	status   models.EntityStatus
}

type webhookCall struct {
	closerID string
	id       string
	secret   string
}

type fakeCloserStore struct {
	byID       map[string]*models.Closer
	inserted   []*models.Closer
	statuses   []statusCall
	webhooks   []webhookCall
	insertErr  error
	webhookErr error
	statusErr  error
}

func newFakeCloserStore() *fakeCloserStore {
	return &fakeCloserStore{byID: map[string]*models.Closer{}}
}

func (f *fakeCloserStore) Insert(_ context.Context, closer *models.Closer) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, closer)
	f.byID[closer.ID] = closer
	return nil
}

func (f *fakeCloserStore) GetByID(_ context.Context, _, id string) (*models.Closer, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, warehouse.ErrNotFound
}

func (f *fakeCloserStore) SetStatus(_ context.Context, _, id string, status models.EntityStatus) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, statusCall{closerID: id, status: status})
	return nil
}

func (f *fakeCloserStore) SetProviderWebhook(_ context.Context, _, id, webhookID, webhookSecret string) error {
	if f.webhookErr != nil {
		return f.webhookErr
	}
	f.webhooks = append(f.webhooks, webhookCall{closerID: id, id: webhookID, secret: webhookSecret})
	return nil
}

type fakePush struct {
	subscribed   []string
	unsubscribed []string
	subErr       error
	unsubErr     error
}

func (f *fakePush) Subscribe(_ context.Context, closer *models.Closer) (*pushchan.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subscribed = append(f.subscribed, closer.ID)
	return &pushchan.Subscription{ChannelID: "chan-" + closer.ID, CloserID: closer.ID}, nil
}

func (f *fakePush) UnsubscribeCloser(_ context.Context, closerID string) error {
	if f.unsubErr != nil {
		return f.unsubErr
	}
	f.unsubscribed = append(f.unsubscribed, closerID)
	return nil
}

type fakeRegistrar struct {
	destinations []string
	deleted      []string
	registerErr  error
	deleteErr    error
}

func (f *fakeRegistrar) RegisterWebhook(_ context.Context, destinationURL string) (*fathom.WebhookRegistration, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.destinations = append(f.destinations, destinationURL)
	return &fathom.WebhookRegistration{ID: "wh-1", Secret: "whsec_abc"}, nil
}

func (f *fakeRegistrar) DeleteWebhook(_ context.Context, webhookID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, webhookID)
	return nil
}

type captureSink struct {
	entries []*models.AuditEntry
}

func (s *captureSink) Insert(_ context.Context, entry *models.AuditEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type fixture struct {
	service   *Service
	tenants   *fakeTenantStore
	closers   *fakeCloserStore
	push      *fakePush
	registrar *fakeRegistrar
	keys      []string
	sink      *captureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		tenants:   newFakeTenantStore(),
		closers:   newFakeCloserStore(),
		push:      &fakePush{},
		registrar: &fakeRegistrar{},
		sink:      &captureSink{},
	}
	fx.service = NewService(Deps{
		Tenants:  fx.tenants,
		Closers:  fx.closers,
		Recorder: audit.NewRecorder(fx.sink),
		Push:     fx.push,
		Registrars: map[string]RegistrarFactory{
			"fathom": func(apiKey string) WebhookRegistrar {
				fx.keys = append(fx.keys, apiKey)
				return fx.registrar
			},
		},
		PublicBaseURL: "https://api.callscope.io/",
	})
	return fx
}

func (fx *fixture) seedTenant(t *testing.T) *models.Tenant {
	t.Helper()
	result, err := fx.service.CreateTenant(context.Background(), &TenantRequest{Name: "Acme Coaching"})
	require.NoError(t, err)
	return result.Tenant
}

func TestCreateTenantDefaults(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.service.CreateTenant(context.Background(), &TenantRequest{Name: "  Acme Coaching  "})

	require.NoError(t, err)
	tenant := result.Tenant
	assert.NotEmpty(t, tenant.ID)
	assert.Equal(t, "Acme Coaching", tenant.Name)
	assert.Equal(t, models.TierBasic, tenant.PlanTier)
	assert.Equal(t, models.StatusActive, tenant.Status)
	assert.Equal(t, models.StringList{"*"}, tenant.FilterPhrases)
	assert.Equal(t, "UTC", tenant.Timezone)
	assert.Len(t, tenant.WebhookSecret, 64)

	assert.Equal(t, "https://api.callscope.io/webhooks/transcript/fathom", result.TranscriptWebhookURL)
	assert.Equal(t, "https://api.callscope.io/webhooks/payment/"+tenant.ID, result.PaymentWebhookURL)
	assert.Equal(t, tenant.WebhookSecret, result.WebhookSecret)
	assert.NotEmpty(t, result.SetupInstructions)

	require.Len(t, fx.tenants.inserted, 1)
	require.Len(t, fx.sink.entries, 1)
	assert.Equal(t, audit.EntityTenant, fx.sink.entries[0].EntityType)
	assert.Equal(t, models.ActionCreated, fx.sink.entries[0].Action)
	assert.Equal(t, "Acme Coaching", fx.sink.entries[0].Metadata["name"])
}

func TestCreateTenantExplicitFields(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.service.CreateTenant(context.Background(), &TenantRequest{
		Name:            "Acme Coaching",
		PlanTier:        "Executive",
		FilterPhrases:   []string{"strategy call", "discovery"},
		DefaultProvider: "google",
		Timezone:        "America/Denver",
	})

	require.NoError(t, err)
	assert.Equal(t, models.TierExecutive, result.Tenant.PlanTier)
	assert.Equal(t, models.StringList{"strategy call", "discovery"}, result.Tenant.FilterPhrases)
	assert.Equal(t, "google", result.Tenant.DefaultProvider)
	assert.Equal(t, "America/Denver", result.Tenant.Timezone)
}

func TestCreateTenantValidation(t *testing.T) {
	fx := newFixture(t)

	t.Run("rejects missing name", func(t *testing.T) {
		_, err := fx.service.CreateTenant(context.Background(), &TenantRequest{})
		assert.True(t, lifecycle.IsValidationError(err))
	})

	t.Run("rejects unknown plan tier", func(t *testing.T) {
		_, err := fx.service.CreateTenant(context.Background(), &TenantRequest{Name: "Acme", PlanTier: "platinum"})
		assert.True(t, lifecycle.IsValidationError(err))
	})

	assert.Empty(t, fx.tenants.inserted)
}

func TestCreateTenantSecretsAreUnique(t *testing.T) {
	fx := newFixture(t)

	first, err := fx.service.CreateTenant(context.Background(), &TenantRequest{Name: "Acme"})
	require.NoError(t, err)
	second, err := fx.service.CreateTenant(context.Background(), &TenantRequest{Name: "Globex"})
	require.NoError(t, err)

	assert.NotEqual(t, first.WebhookSecret, second.WebhookSecret)
}

func TestCreateCloserWithProviderCredential(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:               "Tyler Ray",
		Email:              "Tyler@Acme.io",
		TranscriptProvider: "fathom",
		ProviderAPIKey:     "key-tyler",
	})

	require.NoError(t, err)
	closer := result.Closer
	assert.Equal(t, WebhookRegistered, result.WebhookStatus)
	assert.Equal(t, "tyler@acme.io", closer.Email)
	assert.Equal(t, models.StatusActive, closer.Status)
	assert.Equal(t, "wh-1", closer.ProviderWebhookID)
	assert.Equal(t, "whsec_abc", closer.ProviderWebhookSecret)

	assert.Equal(t, []string{"key-tyler"}, fx.keys)
	require.Len(t, fx.registrar.destinations, 1)
	assert.Equal(t, "https://api.callscope.io/webhooks/transcript/fathom", fx.registrar.destinations[0])

	require.Len(t, fx.closers.webhooks, 1)
	assert.Equal(t, closer.ID, fx.closers.webhooks[0].closerID)
	assert.Equal(t, "wh-1", fx.closers.webhooks[0].id)

	assert.Equal(t, []string{closer.ID}, fx.push.subscribed)

	var created *models.AuditEntry
	for _, e := range fx.sink.entries {
		if e.EntityType == audit.EntityCloser && e.Action == models.ActionCreated {
			created = e
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, "tyler@acme.io", created.Metadata["work_email"])
}

func TestCreateCloserDefaultsProviderWhenKeyGiven(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:           "Tyler Ray",
		Email:          "tyler@acme.io",
		ProviderAPIKey: "key-tyler",
	})

	require.NoError(t, err)
	assert.Equal(t, "fathom", result.Closer.TranscriptProvider)
	assert.Equal(t, WebhookRegistered, result.WebhookStatus)
}

func TestCreateCloserWithoutCredential(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:  "Tyler Ray",
		Email: "tyler@acme.io",
	})

	require.NoError(t, err)
	assert.Equal(t, WebhookSkipped, result.WebhookStatus)
	assert.Empty(t, fx.registrar.destinations)
	// Calendar push does not depend on the transcript credential.
	assert.Equal(t, []string{result.Closer.ID}, fx.push.subscribed)
}

func TestCreateCloserRegistrationFailureIsNonFatal(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)
	fx.registrar.registerErr = errors.New("invalid api key")

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:           "Tyler Ray",
		Email:          "tyler@acme.io",
		ProviderAPIKey: "key-bad",
	})

	require.NoError(t, err)
	assert.Equal(t, WebhookFailed, result.WebhookStatus)
	assert.Empty(t, result.Closer.ProviderWebhookID)
	require.Len(t, fx.closers.inserted, 1)
}

func TestCreateCloserWebhookStoreFailure(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)
	fx.closers.webhookErr = errors.New("db down")

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:           "Tyler Ray",
		Email:          "tyler@acme.io",
		ProviderAPIKey: "key-tyler",
	})

	require.NoError(t, err)
	assert.Equal(t, WebhookFailed, result.WebhookStatus)
}

func TestCreateCloserPushFailureIsNonFatal(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)
	fx.push.subErr = errors.New("quota exceeded")

	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:  "Tyler Ray",
		Email: "tyler@acme.io",
	})

	require.NoError(t, err)
	require.Len(t, fx.closers.inserted, 1)
	assert.Equal(t, models.StatusActive, result.Closer.Status)
}

func TestCreateCloserValidation(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)

	t.Run("rejects unknown tenant", func(t *testing.T) {
		_, err := fx.service.CreateCloser(context.Background(), "tenant-unknown", &CloserRequest{
			Name:  "Tyler Ray",
			Email: "tyler@acme.io",
		})
		assert.ErrorIs(t, err, warehouse.ErrNotFound)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		_, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{Email: "tyler@acme.io"})
		assert.True(t, lifecycle.IsValidationError(err))
	})

	t.Run("rejects missing email", func(t *testing.T) {
		_, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{Name: "Tyler Ray"})
		assert.True(t, lifecycle.IsValidationError(err))
	})

	assert.Empty(t, fx.closers.inserted)
}

func TestDeactivateCloser(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)
	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:           "Tyler Ray",
		Email:          "tyler@acme.io",
		ProviderAPIKey: "key-tyler",
	})
	require.NoError(t, err)
	closer := result.Closer

	require.NoError(t, fx.service.DeactivateCloser(context.Background(), tenant.ID, closer.ID))

	assert.Equal(t, []string{"wh-1"}, fx.registrar.deleted)
	assert.Equal(t, []string{closer.ID}, fx.push.unsubscribed)
	require.Len(t, fx.closers.statuses, 1)
	assert.Equal(t, models.StatusInactive, fx.closers.statuses[0].status)

	var updated *models.AuditEntry
	for _, e := range fx.sink.entries {
		if e.Action == models.ActionUpdated && e.EntityType == audit.EntityCloser {
			updated = e
		}
	}
	require.NotNil(t, updated)
	assert.Equal(t, "status", updated.FieldName)
	assert.Equal(t, string(models.StatusInactive), updated.NewValue)
}

func TestDeactivateCloserWebhookDeleteFailureIsNonFatal(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)
	result, err := fx.service.CreateCloser(context.Background(), tenant.ID, &CloserRequest{
		Name:           "Tyler Ray",
		Email:          "tyler@acme.io",
		ProviderAPIKey: "key-tyler",
	})
	require.NoError(t, err)
	fx.registrar.deleteErr = errors.New("provider down")
	fx.push.unsubErr = errors.New("channel gone")

	require.NoError(t, fx.service.DeactivateCloser(context.Background(), tenant.ID, result.Closer.ID))
	require.Len(t, fx.closers.statuses, 1)
	assert.Equal(t, models.StatusInactive, fx.closers.statuses[0].status)
}

func TestDeactivateCloserUnknown(t *testing.T) {
	fx := newFixture(t)
	tenant := fx.seedTenant(t)

	err := fx.service.DeactivateCloser(context.Background(), tenant.ID, "closer-unknown")
	assert.ErrorIs(t, err, warehouse.ErrNotFound)
}
