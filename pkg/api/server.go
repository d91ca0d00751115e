// Package api is the HTTP ingress: the webhook endpoints the calendar,
// transcript, and payment providers deliver to, plus a bearer-authenticated
// admin surface for provisioning and operational actions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/payments"
	"github.com/callscope/callscope/pkg/pushchan"
	"github.com/callscope/callscope/pkg/tenants"
	"github.com/callscope/callscope/pkg/transcript"
	"github.com/callscope/callscope/pkg/warehouse"
)

// TokenSource resolves bearer values to access tokens.
// *warehouse.TokenStore satisfies it.
type TokenSource interface {
	Resolve(ctx context.Context, value string) (*models.AccessToken, error)
}

// CalendarNotifier reacts to one calendar push notification.
// *calendar.Orchestrator satisfies it.
type CalendarNotifier interface {
	HandleNotification(ctx context.Context, tenantID string) error
}

// TranscriptProcessor ingests transcript payloads, raw or canonical.
// *transcript.Orchestrator satisfies it.
type TranscriptProcessor interface {
	Process(ctx context.Context, provider string, payload []byte, hints transcript.Hints) (*transcript.Result, error)
	ProcessCanonical(ctx context.Context, t *models.CanonicalTranscript, hints transcript.Hints) (*transcript.Result, error)
}

// PaymentProcessor applies one payment event. *payments.Service satisfies it.
type PaymentProcessor interface {
	Process(ctx context.Context, tenantID string, req *payments.Request) (*payments.Result, error)
}

// Provisioner onboards tenants and closers. *tenants.Service satisfies it.
type Provisioner interface {
	CreateTenant(ctx context.Context, req *tenants.TenantRequest) (*tenants.TenantResult, error)
	CreateCloser(ctx context.Context, tenantID string, req *tenants.CloserRequest) (*tenants.CloserResult, error)
	DeactivateCloser(ctx context.Context, tenantID, closerID string) error
}

// SweepRunner runs one sweep pass on demand. *sweeper.Service satisfies it.
type SweepRunner interface {
	Sweep(ctx context.Context)
}

// MeetingPuller fetches one meeting transcript from a provider API.
// *fathom.Client satisfies it.
type MeetingPuller interface {
	GetMeeting(ctx context.Context, meetingID string) (*models.CanonicalTranscript, error)
}

// PullerFactory builds a pull client from a closer's API key.
type PullerFactory func(apiKey string) MeetingPuller

// CallSource is the slice of the call store the handlers read.
type CallSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Call, error)
}

// TenantSource loads tenants for payment authentication and scoping.
type TenantSource interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// CloserSource loads closers for admin reprocessing.
type CloserSource interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Closer, error)
}

// ObjectionSource lists a call's objections.
type ObjectionSource interface {
	ListByCall(ctx context.Context, tenantID, callID string) ([]models.Objection, error)
}

// AuditSource lists an entity's audit trail.
type AuditSource interface {
	ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]models.AuditEntry, error)
}

// Deps wires the server. DB is only used by the health endpoint; all data
// access goes through the narrower sources. Channels and Pullers are
// optional: without Channels the calendar webhook trusts the channel token
// alone, and without a matching Pullers entry admin reprocessing is
// rejected.
type Deps struct {
	Config       *config.Config
	DB           *warehouse.Client
	Tokens       TokenSource
	Calendar     CalendarNotifier
	Transcripts  TranscriptProcessor
	Payments     PaymentProcessor
	Provisioning Provisioner
	Sweeper      SweepRunner

	Calls      CallSource
	Tenants    TenantSource
	Closers    CloserSource
	Objections ObjectionSource
	Audit      AuditSource

	Channels *pushchan.Registry
	Pullers  map[string]PullerFactory
}

// Server owns the router and the listener.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the router with middleware and all routes registered.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		echo:   echo.New(),
		logger: slog.With("component", "api"),
	}
	s.echo.Use(securityHeaders())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/health", s.healthHandler)

	// Provider-facing webhooks authenticate per-endpoint, not via bearer
	// tokens: the calendar channel token and the payment webhook secret.
	e.POST("/webhooks/calendar", s.calendarWebhookHandler)
	e.POST("/webhooks/transcript/:provider", s.transcriptWebhookHandler)
	e.POST("/webhooks/payment/:tenant_id", s.paymentWebhookHandler)

	v1 := e.Group("/api/v1", s.requireAuth())
	v1.POST("/tenants", s.createTenantHandler)
	v1.POST("/tenants/:tenant_id/closers", s.createCloserHandler)
	v1.DELETE("/tenants/:tenant_id/closers/:closer_id", s.deactivateCloserHandler)
	v1.GET("/tenants/:tenant_id/calls/:call_id", s.getCallHandler)
	v1.POST("/tenants/:tenant_id/calls/:call_id/reprocess", s.reprocessCallHandler)
	v1.GET("/tenants/:tenant_id/audit", s.listAuditHandler)
	v1.POST("/sweep", s.sweepHandler)
}

// Start begins serving on addr and blocks until Shutdown or a listener
// error. Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
