// Package tenants provisions tenants and closers: identity, webhook
// secrets, provider webhook auto-registration, and teardown.
package tenants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/fathom"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/pushchan"
)

// Webhook registration states reported on closer creation.
const (
	WebhookRegistered = "registered"
	WebhookFailed     = "registration_failed"
	WebhookSkipped    = "not_configured"
)

// TenantStore is the warehouse surface for tenant provisioning.
type TenantStore interface {
	Insert(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// CloserStore is the warehouse surface for closer provisioning.
type CloserStore interface {
	Insert(ctx context.Context, closer *models.Closer) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Closer, error)
	SetStatus(ctx context.Context, tenantID, id string, status models.EntityStatus) error
	SetProviderWebhook(ctx context.Context, tenantID, id, webhookID, webhookSecret string) error
}

// PushManager maintains calendar push subscriptions for closers.
// *pushchan.Manager satisfies this.
type PushManager interface {
	Subscribe(ctx context.Context, closer *models.Closer) (*pushchan.Subscription, error)
	UnsubscribeCloser(ctx context.Context, closerID string) error
}

// WebhookRegistrar manages webhooks at the transcript provider.
// *fathom.Client satisfies this.
type WebhookRegistrar interface {
	RegisterWebhook(ctx context.Context, destinationURL string) (*fathom.WebhookRegistration, error)
	DeleteWebhook(ctx context.Context, webhookID string) error
}

// RegistrarFactory builds a provider client around one closer's
// credential.
type RegistrarFactory func(apiKey string) WebhookRegistrar

// Deps wires the provisioning service.
type Deps struct {
	Tenants    TenantStore
	Closers    CloserStore
	Recorder   *audit.Recorder
	Push       PushManager
	Registrars map[string]RegistrarFactory
	// PublicBaseURL is the externally reachable base of this deployment,
	// used to assemble the webhook URLs handed to providers and tenants.
	PublicBaseURL string
}

// Service provisions tenants and closers.
type Service struct {
	tenants    TenantStore
	closers    CloserStore
	recorder   *audit.Recorder
	push       PushManager
	registrars map[string]RegistrarFactory
	baseURL    string
	logger     *slog.Logger
}

func NewService(deps Deps) *Service {
	return &Service{
		tenants:    deps.Tenants,
		closers:    deps.Closers,
		recorder:   deps.Recorder,
		push:       deps.Push,
		registrars: deps.Registrars,
		baseURL:    strings.TrimRight(deps.PublicBaseURL, "/"),
		logger:     slog.With("component", "tenants"),
	}
}

// TenantRequest is the admin payload creating a tenant.
type TenantRequest struct {
	Name            string   `json:"name"`
	PlanTier        string   `json:"plan_tier"`
	FilterPhrases   []string `json:"filter_phrases"`
	DefaultProvider string   `json:"default_provider"`
	Timezone        string   `json:"timezone"`
}

// TenantResult carries the created tenant and everything the operator
// needs to finish setup.
type TenantResult struct {
	Tenant               *models.Tenant `json:"tenant"`
	TranscriptWebhookURL string         `json:"transcript_webhook_url"`
	PaymentWebhookURL    string         `json:"payment_webhook_url"`
	WebhookSecret        string         `json:"webhook_secret"`
	SetupInstructions    []string       `json:"setup_instructions"`
}

// CreateTenant allocates a tenant with defaults and a fresh webhook
// secret, and returns the webhook endpoints to configure.
func (s *Service) CreateTenant(ctx context.Context, req *TenantRequest) (*TenantResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, lifecycle.NewValidationError("name", "is required")
	}

	tier := models.PlanTier(strings.ToLower(strings.TrimSpace(req.PlanTier)))
	if tier == "" {
		tier = models.TierBasic
	}
	if !tier.IsValid() {
		return nil, lifecycle.NewValidationError("plan_tier", fmt.Sprintf("unknown tier %q", req.PlanTier))
	}

	phrases := req.FilterPhrases
	if len(phrases) == 0 {
		// Accept every event until the tenant narrows the filter.
		phrases = []string{"*"}
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}

	secret, err := newWebhookSecret()
	if err != nil {
		return nil, fmt.Errorf("generating webhook secret: %w", err)
	}

	tenant := &models.Tenant{
		ID:              uuid.NewString(),
		Name:            name,
		PlanTier:        tier,
		Status:          models.StatusActive,
		FilterPhrases:   phrases,
		DefaultProvider: strings.TrimSpace(req.DefaultProvider),
		WebhookSecret:   secret,
		Timezone:        timezone,
	}
	if err := s.tenants.Insert(ctx, tenant); err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}

	s.recorder.Created(ctx, tenant.ID, audit.EntityTenant, tenant.ID,
		models.TriggerSourceAdmin, "tenant created", models.Metadata{"name": name})
	s.logger.Info("Tenant created", "tenant_id", tenant.ID, "name", name, "plan_tier", string(tier))

	result := &TenantResult{
		Tenant:               tenant,
		TranscriptWebhookURL: s.transcriptWebhookURL("fathom"),
		PaymentWebhookURL:    s.paymentWebhookURL(tenant.ID),
		WebhookSecret:        secret,
		SetupInstructions: []string{
			"Share each closer's calendar with the service account so push channels can be opened.",
			"Add closers with their Fathom API keys to auto-register transcript webhooks, or point Fathom at the transcript webhook URL manually.",
			"Configure the payment provider to POST payment events to the payment webhook URL with the webhook secret as a bearer token.",
		},
	}
	return result, nil
}

// CloserRequest is the admin payload creating a closer.
type CloserRequest struct {
	Name               string `json:"name"`
	Email              string `json:"work_email"`
	TranscriptProvider string `json:"transcript_provider"`
	ProviderAPIKey     string `json:"provider_api_key"`
}

// CloserResult carries the created closer and how provider webhook
// registration went.
type CloserResult struct {
	Closer        *models.Closer `json:"closer"`
	WebhookStatus string         `json:"webhook_status"`
}

// CreateCloser creates a closer under the tenant. A supplied transcript
// credential triggers webhook auto-registration with the provider;
// registration failure is non-fatal and reported in the result. The
// closer's calendar is subscribed for push notifications when a push
// manager is configured.
func (s *Service) CreateCloser(ctx context.Context, tenantID string, req *CloserRequest) (*CloserResult, error) {
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, lifecycle.NewValidationError("name", "is required")
	}
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		return nil, lifecycle.NewValidationError("work_email", "is required")
	}

	provider := strings.ToLower(strings.TrimSpace(req.TranscriptProvider))
	if provider == "" && req.ProviderAPIKey != "" {
		provider = fathom.ProviderName
	}

	closer := &models.Closer{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		Name:               name,
		Email:              email,
		Status:             models.StatusActive,
		TranscriptProvider: provider,
		ProviderAPIKey:     strings.TrimSpace(req.ProviderAPIKey),
	}
	if err := s.closers.Insert(ctx, closer); err != nil {
		return nil, fmt.Errorf("creating closer: %w", err)
	}

	s.recorder.Created(ctx, tenantID, audit.EntityCloser, closer.ID,
		models.TriggerSourceAdmin, "closer created", models.Metadata{"name": name, "work_email": email})
	s.logger.Info("Closer created", "tenant_id", tenantID, "closer_id", closer.ID, "work_email", email)

	status := s.registerProviderWebhook(ctx, closer)
	s.subscribeCalendar(ctx, closer)

	return &CloserResult{Closer: closer, WebhookStatus: status}, nil
}

// DeactivateCloser tears down the closer's provider webhook and push
// subscription and marks it inactive. History is retained.
func (s *Service) DeactivateCloser(ctx context.Context, tenantID, closerID string) error {
	closer, err := s.closers.GetByID(ctx, tenantID, closerID)
	if err != nil {
		return fmt.Errorf("loading closer %s: %w", closerID, err)
	}

	if closer.ProviderWebhookID != "" {
		if registrar := s.registrarFor(closer); registrar != nil {
			if err := registrar.DeleteWebhook(ctx, closer.ProviderWebhookID); err != nil {
				s.logger.Warn("Provider webhook delete failed",
					"closer_id", closerID, "webhook_id", closer.ProviderWebhookID, "error", err)
			}
		}
	}

	if s.push != nil {
		if err := s.push.UnsubscribeCloser(ctx, closerID); err != nil {
			s.logger.Warn("Push unsubscribe failed", "closer_id", closerID, "error", err)
		}
	}

	if err := s.closers.SetStatus(ctx, tenantID, closerID, models.StatusInactive); err != nil {
		return fmt.Errorf("deactivating closer %s: %w", closerID, err)
	}

	s.recorder.FieldUpdate(ctx, tenantID, audit.EntityCloser, closerID,
		"status", string(models.StatusActive), string(models.StatusInactive),
		models.TriggerSourceAdmin, "closer deactivated")
	s.logger.Info("Closer deactivated", "tenant_id", tenantID, "closer_id", closerID)
	return nil
}

// registerProviderWebhook points the transcript provider at this
// deployment. Mutates the closer's webhook fields on success.
func (s *Service) registerProviderWebhook(ctx context.Context, closer *models.Closer) string {
	registrar := s.registrarFor(closer)
	if registrar == nil || s.baseURL == "" {
		return WebhookSkipped
	}

	registration, err := registrar.RegisterWebhook(ctx, s.transcriptWebhookURL(closer.TranscriptProvider))
	if err != nil {
		s.logger.Warn("Provider webhook registration failed",
			"closer_id", closer.ID, "provider", closer.TranscriptProvider, "error", err)
		return WebhookFailed
	}

	if err := s.closers.SetProviderWebhook(ctx, closer.TenantID, closer.ID, registration.ID, registration.Secret); err != nil {
		s.logger.Warn("Storing provider webhook failed", "closer_id", closer.ID, "error", err)
		return WebhookFailed
	}

	closer.ProviderWebhookID = registration.ID
	closer.ProviderWebhookSecret = registration.Secret
	s.logger.Info("Provider webhook registered",
		"closer_id", closer.ID, "provider", closer.TranscriptProvider, "webhook_id", registration.ID)
	return WebhookRegistered
}

func (s *Service) subscribeCalendar(ctx context.Context, closer *models.Closer) {
	if s.push == nil {
		return
	}
	if _, err := s.push.Subscribe(ctx, closer); err != nil {
		s.logger.Warn("Calendar subscription failed", "closer_id", closer.ID, "error", err)
	}
}

func (s *Service) registrarFor(closer *models.Closer) WebhookRegistrar {
	if closer.ProviderAPIKey == "" {
		return nil
	}
	factory, ok := s.registrars[closer.TranscriptProvider]
	if !ok {
		return nil
	}
	return factory(closer.ProviderAPIKey)
}

func (s *Service) transcriptWebhookURL(provider string) string {
	if provider == "" {
		provider = fathom.ProviderName
	}
	return fmt.Sprintf("%s/webhooks/transcript/%s", s.baseURL, provider)
}

func (s *Service) paymentWebhookURL(tenantID string) string {
	return fmt.Sprintf("%s/webhooks/payment/%s", s.baseURL, tenantID)
}

func newWebhookSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
