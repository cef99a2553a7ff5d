package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/Fi44er/sol_gift/internal/service"
	"github.com/Fi44er/sol_gift/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const identityKey = "session_identity"

// withSession resolves the bearer token into a SessionIdentity. With required set a
// request without a valid session is answered with 401; otherwise it continues anonymously.
func (h *Handler) withSession(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			if required {
				h.fail(c, service.ErrUnauthenticated)
				c.Abort()
				return
			}
			c.Next()
			return
		}

		identity, err := h.service.ParseSession(token)
		if err != nil {
			h.logger.Debugf("rejected session: %v", err)
			h.fail(c, service.ErrUnauthenticated)
			c.Abort()
			return
		}
		c.Set(identityKey, identity)
		c.Next()
	}
}

func identity(c *gin.Context) service.SessionIdentity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(service.SessionIdentity); ok {
			return id
		}
	}
	return service.SessionIdentity{}
}

// RequestLogger writes one line per request; server errors at error level.
func RequestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if id := identity(c); id.Address != "" {
			entry = entry.WithField("caller", utils.MaskShort(id.Address))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
