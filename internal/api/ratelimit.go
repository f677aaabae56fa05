package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"medoai/internal/auth"
)

// rateLimiter is a per-user sliding window. Hit timestamps live in a go-cache
// entry that expires one window after the user's last request.
type rateLimiter struct {
	limit  int
	window time.Duration
	hits   *gocache.Cache
	mu     sync.Mutex
	now    func() time.Time
}

// newRateLimiter returns nil when limit is not positive; a nil limiter allows everything.
func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	return &rateLimiter{
		limit:  limit,
		window: window,
		hits:   gocache.New(window, 2*window),
		now:    time.Now,
	}
}

// Allow records a hit for key. When the window is full it reports how long
// until the oldest hit leaves it.
func (r *rateLimiter) Allow(key string) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)
	var recent []time.Time
	if v, ok := r.hits.Get(key); ok {
		for _, t := range v.([]time.Time) {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
	}
	if len(recent) >= r.limit {
		r.hits.Set(key, recent, r.window)
		return false, recent[0].Add(r.window).Sub(now)
	}
	recent = append(recent, now)
	r.hits.Set(key, recent, r.window)
	return true, 0
}

// rateLimit must run after the auth middleware.
func (h *Handler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, _ := auth.UserIDFromContext(c)
		ok, retry := h.limiter.Allow(userID)
		if !ok {
			secs := int(retry.Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": message(requestLanguage(c), msgRateLimited)})
			return
		}
		c.Next()
	}
}
