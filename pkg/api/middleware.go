package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/warehouse"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// requireAuth returns middleware guarding the admin API. The admin key from
// the environment always passes; otherwise the bearer value must resolve to
// an active access token whose scope covers the :tenant_id path parameter.
// Routes without a tenant parameter are admin-only by construction, since no
// client or partner token covers an empty tenant id.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			value := bearerToken(c.Request())
			if value == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			if admin := s.deps.Config.AdminKey(); admin != "" &&
				subtle.ConstantTimeCompare([]byte(value), []byte(admin)) == 1 {
				return next(c)
			}

			if s.deps.Tokens == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			token, err := s.deps.Tokens.Resolve(c.Request().Context(), value)
			if err != nil {
				if errors.Is(err, warehouse.ErrNotFound) {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
				}
				return mapServiceError(err)
			}
			if !tokenAllows(token, c.Param("tenant_id")) {
				return echo.NewHTTPError(http.StatusForbidden, "token does not cover this client")
			}
			return next(c)
		}
	}
}

// tokenAllows reports whether token may act on tenantID.
func tokenAllows(token *models.AccessToken, tenantID string) bool {
	switch token.Scope {
	case models.ScopeAdmin:
		return true
	case models.ScopeClient:
		return tenantID != "" && token.TenantID == tenantID
	case models.ScopePartner:
		return tenantID != "" && slices.Contains(token.TenantIDs, tenantID)
	default:
		return false
	}
}

// bearerToken extracts the bearer value from the Authorization header.
// Returns "" when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
