package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/carehub/carehub/internal/platform/audit"
)

const (
	ActorIDHeader     = "X-Actor-ID"
	AuditReasonHeader = "X-Audit-Reason"
)

// Actor attaches an audit.Actor to the request context. Identity is asserted
// by the upstream gateway; this service does not authenticate it.
func Actor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			a := audit.Actor{
				ID:     strings.TrimSpace(req.Header.Get(ActorIDHeader)),
				Reason: strings.TrimSpace(req.Header.Get(AuditReasonHeader)),
			}
			if a.ID == "" {
				a.ID = "anonymous"
			}
			if rid, ok := c.Get("request_id").(string); ok {
				a.RequestID = rid
			}
			c.Set("actor_id", a.ID)
			c.SetRequest(req.WithContext(audit.WithActor(req.Context(), a)))
			return next(c)
		}
	}
}
