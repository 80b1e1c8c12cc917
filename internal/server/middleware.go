package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/railzwaylabs/bullion/internal/authcontext"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	headerUserRoles = "X-User-Roles"

	contextRequestIDKey = "request_id"
	contextLoggerKey    = "logger"
)

// RequestContext tags each request with an id, a request-scoped logger and
// records its latency.
func (s *Server) RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(contextRequestIDKey, requestID)
		c.Header(headerRequestID, requestID)

		log := s.log.With(zap.String("request_id", requestID))
		c.Set(contextLoggerKey, log)

		started := time.Now()
		c.Next()
		took := time.Since(started)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(c.Request.Method, route, c.Writer.Status(), took)
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", took),
		)
	}
}

// Identity trusts the gateway headers and puts the caller into the request
// context. Requests without a user id continue anonymously.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		if userID == "" {
			c.Next()
			return
		}

		var roles []string
		for _, r := range strings.Split(c.GetHeader(headerUserRoles), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, strings.ToLower(r))
			}
		}
		ctx := authcontext.WithIdentity(c.Request.Context(), authcontext.Identity{UserID: userID, Roles: roles})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authcontext.FromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := authcontext.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !id.IsAdmin() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) authcontext.Identity {
	id, _ := authcontext.FromContext(c.Request.Context())
	return id
}

// checkOrderQuota and checkPaymentQuota are no-ops when no quota service is wired.
func (s *Server) checkOrderQuota(c *gin.Context, userID string) error {
	if s.quotaSvc == nil {
		return nil
	}
	return s.quotaSvc.CanPlaceOrder(c.Request.Context(), userID)
}

func (s *Server) checkPaymentQuota(c *gin.Context, userID string) error {
	if s.quotaSvc == nil {
		return nil
	}
	return s.quotaSvc.CanInitiatePayment(c.Request.Context(), userID)
}
