package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey    = "auth_user_id"
	authTokenContextKey = "auth_token"
)

// Middleware resolves the session token to a user id and stores both in the
// gin context. deny may be nil.
func (s *Service) Middleware(deny DenyFunc) gin.HandlerFunc {
	if deny == nil {
		deny = defaultDeny
	}
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		userID, err := s.ValidateToken(c.Request.Context(), authToken)
		switch {
		case err == nil:
		case errors.Is(err, ErrTokenRequired), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
			deny(c, http.StatusUnauthorized, err)
			c.Abort()
			return
		default:
			s.log.Error("validate token", "error", err)
			deny(c, http.StatusServiceUnavailable, err)
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(userIDContextKey)
	return userID, userID != ""
}

// AuthTokenFromContext returns the session token stored by Middleware.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	token := c.GetString(authTokenContextKey)
	return token, token != ""
}

func (s *Service) bearerToken(c *gin.Context) string {
	header := c.GetHeader(s.headerName)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// extractToken prefers the Authorization header over the session cookie.
func (s *Service) extractToken(c *gin.Context) string {
	if token := s.bearerToken(c); token != "" {
		return token
	}
	if token, err := c.Cookie(s.cookieName); err == nil {
		return token
	}
	return ""
}
