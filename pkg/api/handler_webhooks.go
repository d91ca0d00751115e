package api

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/payments"
	"github.com/callscope/callscope/pkg/transcript"
)

// Calendar push notifications carry everything in headers; the body is
// empty.
const (
	headerChannelID     = "X-Goog-Channel-ID"
	headerChannelToken  = "X-Goog-Channel-Token"
	headerResourceState = "X-Goog-Resource-State"

	resourceStateSync = "sync"
)

const (
	// transcriptBodyLimit caps webhook payloads. Full transcripts of long
	// calls run to a few hundred KB.
	transcriptBodyLimit = 4 << 20

	// defaultProcessTimeout bounds detached processing kicked off by a
	// webhook that has already been acknowledged, when no transcript
	// process_timeout is configured.
	defaultProcessTimeout = 2 * time.Minute
)

func (s *Server) processTimeout() time.Duration {
	cfg := s.deps.Config
	if cfg != nil && cfg.Transcript != nil && cfg.Transcript.ProcessTimeout > 0 {
		return cfg.Transcript.ProcessTimeout
	}
	return defaultProcessTimeout
}

// calendarWebhookHandler handles POST /webhooks/calendar. The channel
// token was set to the tenant id when the watch was opened, so it routes
// the notification without a body.
func (s *Server) calendarWebhookHandler(c *echo.Context) error {
	state := c.Request().Header.Get(headerResourceState)
	if state == resourceStateSync {
		// Channel handshake sent right after a watch opens. Nothing to
		// fetch yet.
		return c.NoContent(http.StatusOK)
	}

	tenantID := c.Request().Header.Get(headerChannelToken)
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing channel token")
	}

	// A notification for a channel we registered must carry that
	// channel's tenant. Unknown channel ids are let through: the registry
	// is empty right after a restart.
	if s.deps.Channels != nil {
		channelID := c.Request().Header.Get(headerChannelID)
		if sub, ok := s.deps.Channels.Get(channelID); ok && sub.TenantID != tenantID {
			return echo.NewHTTPError(http.StatusForbidden, "channel token does not match registration")
		}
	}

	if err := s.deps.Calendar.HandleNotification(c.Request().Context(), tenantID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusOK)
}

// transcriptWebhookHandler handles POST /webhooks/transcript/:provider.
// The provider is acknowledged immediately and the payload processed in
// the background; slow LLM analysis must not push the provider into its
// retry-and-redeliver loop.
func (s *Server) transcriptWebhookHandler(c *echo.Context) error {
	provider := c.Param("provider")

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, transcriptBodyLimit))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty body")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout())
		defer cancel()
		if _, err := s.deps.Transcripts.Process(ctx, provider, body, transcript.Hints{}); err != nil {
			s.logger.Error("Transcript webhook processing failed",
				"provider", provider,
				"error", err)
		}
	}()

	return c.JSON(http.StatusOK, map[string]string{"status": "accepted"})
}

// paymentWebhookHandler handles POST /webhooks/payment/:tenant_id. The
// bearer value must equal the tenant's stored webhook secret.
func (s *Server) paymentWebhookHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	tenant, err := s.deps.Tenants.GetByID(c.Request().Context(), tenantID)
	if err != nil {
		return mapServiceError(err)
	}

	secret := bearerToken(c.Request())
	if secret == "" || tenant.WebhookSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(tenant.WebhookSecret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook secret")
	}
	if tenant.Status != models.StatusActive {
		return echo.NewHTTPError(http.StatusForbidden, "client is inactive")
	}

	var req payments.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.Payments.Process(c.Request().Context(), tenantID, &req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
