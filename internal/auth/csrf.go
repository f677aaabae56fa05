package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrCSRFMismatch is reported when a cookie-authenticated write request does
// not echo the csrf cookie in the csrf header.
var ErrCSRFMismatch = errors.New("invalid csrf token")

// DenyFunc writes the response for a request the auth middlewares rejected.
// err is one of ErrTokenRequired, ErrInvalidToken, ErrTokenExpired,
// ErrCSRFMismatch or a wrapped lookup failure (status 503).
type DenyFunc func(c *gin.Context, status int, err error)

func defaultDeny(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// CSRFMiddleware enforces double-submit protection for cookie sessions. Safe
// methods and bearer requests pass through.
func (s *Service) CSRFMiddleware(deny DenyFunc) gin.HandlerFunc {
	if deny == nil {
		deny = defaultDeny
	}
	return func(c *gin.Context) {
		if !requiresCSRFCheck(c.Request.Method) || s.bearerToken(c) != "" {
			c.Next()
			return
		}
		header := c.GetHeader(s.csrfHeaderName)
		cookie, err := c.Cookie(s.csrfCookieName)
		if err != nil || header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie)) != 1 {
			deny(c, http.StatusForbidden, ErrCSRFMismatch)
			c.Abort()
			return
		}
		c.Next()
	}
}

func requiresCSRFCheck(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
