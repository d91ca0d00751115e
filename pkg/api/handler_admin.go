package api

import (
	"context"
	"net/http"
	"net/url"
	"path"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/tenants"
	"github.com/callscope/callscope/pkg/transcript"
)

// createTenantHandler handles POST /api/v1/tenants.
func (s *Server) createTenantHandler(c *echo.Context) error {
	var req tenants.TenantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.Provisioning.CreateTenant(c.Request().Context(), &req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// createCloserHandler handles POST /api/v1/tenants/:tenant_id/closers.
func (s *Server) createCloserHandler(c *echo.Context) error {
	var req tenants.CloserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.Provisioning.CreateCloser(c.Request().Context(), c.Param("tenant_id"), &req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// deactivateCloserHandler handles DELETE /api/v1/tenants/:tenant_id/closers/:closer_id.
func (s *Server) deactivateCloserHandler(c *echo.Context) error {
	err := s.deps.Provisioning.DeactivateCloser(c.Request().Context(),
		c.Param("tenant_id"), c.Param("closer_id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// CallDetailResponse is returned by GET /api/v1/tenants/:tenant_id/calls/:call_id.
type CallDetailResponse struct {
	Call       *models.Call       `json:"call"`
	Objections []models.Objection `json:"objections"`
}

func (s *Server) getCallHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	callID := c.Param("call_id")

	call, err := s.deps.Calls.GetByID(c.Request().Context(), tenantID, callID)
	if err != nil {
		return mapServiceError(err)
	}
	objections, err := s.deps.Objections.ListByCall(c.Request().Context(), tenantID, callID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &CallDetailResponse{Call: call, Objections: objections})
}

// ReprocessResponse is returned by the reprocess endpoint.
type ReprocessResponse struct {
	Status    string `json:"status"`
	MeetingID string `json:"meeting_id"`
}

// reprocessCallHandler handles POST /api/v1/tenants/:tenant_id/calls/:call_id/reprocess.
// No transcript text is stored, so the meeting is re-pulled from the
// provider with the closer's credential and pushed through the normal
// transcript pipeline with the call pinned. Responds 202; the pull and
// analysis continue in the background.
func (s *Server) reprocessCallHandler(c *echo.Context) error {
	tenantID := c.Param("tenant_id")
	callID := c.Param("call_id")
	reqCtx := c.Request().Context()

	call, err := s.deps.Calls.GetByID(reqCtx, tenantID, callID)
	if err != nil {
		return mapServiceError(err)
	}
	meetingID := call.ProviderMeetingID
	if meetingID == "" {
		// Rows written before the meeting binding only carry the link.
		meetingID = meetingIDFromURL(call.TranscriptURL)
	}
	if meetingID == "" {
		return echo.NewHTTPError(http.StatusConflict, "call has no transcript to reprocess")
	}

	closer, err := s.deps.Closers.GetByID(reqCtx, tenantID, call.CloserID)
	if err != nil {
		return mapServiceError(err)
	}
	provider := call.TranscriptProvider
	if provider == "" {
		provider = closer.TranscriptProvider
	}
	factory, ok := s.deps.Pullers[provider]
	if !ok || closer.ProviderAPIKey == "" {
		return echo.NewHTTPError(http.StatusConflict, "no transcript pull credential for closer")
	}
	puller := factory(closer.ProviderAPIKey)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout())
		defer cancel()

		tr, err := puller.GetMeeting(ctx, meetingID)
		if err != nil {
			s.logger.Error("Reprocess pull failed",
				"client_id", tenantID,
				"call_id", callID,
				"meeting_id", meetingID,
				"error", err)
			return
		}
		hints := transcript.Hints{TenantID: tenantID, CallID: callID, Source: models.TriggerSourceAdmin}
		if _, err := s.deps.Transcripts.ProcessCanonical(ctx, tr, hints); err != nil {
			s.logger.Error("Reprocess failed",
				"client_id", tenantID,
				"call_id", callID,
				"error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, &ReprocessResponse{Status: "accepted", MeetingID: meetingID})
}

// listAuditHandler handles GET /api/v1/tenants/:tenant_id/audit.
// Both entity_type and entity_id query parameters are required.
func (s *Server) listAuditHandler(c *echo.Context) error {
	entityType := c.QueryParam("entity_type")
	entityID := c.QueryParam("entity_id")
	if entityType == "" || entityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity_type and entity_id are required")
	}

	entries, err := s.deps.Audit.ListByEntity(c.Request().Context(),
		c.Param("tenant_id"), entityType, entityID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// sweepHandler handles POST /api/v1/sweep. Runs one synchronous sweep
// pass across all tenants, so the route has no tenant parameter and only
// admin credentials reach it.
func (s *Server) sweepHandler(c *echo.Context) error {
	if s.deps.Sweeper == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sweeper is not configured")
	}
	s.deps.Sweeper.Sweep(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]string{"status": "completed"})
}

// meetingIDFromURL extracts the provider meeting id from a stored
// transcript URL, its trailing path segment. Returns "" when the URL has
// no usable segment.
func meetingIDFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	id := path.Base(p)
	if id == "." || id == "/" {
		return ""
	}
	return id
}
