package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"medoai/internal/logger"
	"medoai/internal/redis"
)

const redisTokenPrefix = "auth:token:"

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service issues, validates, and revokes user authentication tokens.
type Service struct {
	db             *sql.DB
	rdb            *redis.Client
	log            *logger.Logger
	tokenTTL       time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
	now            func() time.Time
}

// NewService constructs an auth service with the supplied token lifetime.
// rdb may be nil, in which case every lookup goes to the database.
func NewService(db *sql.DB, rdb *redis.Client, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:             db,
		rdb:            rdb,
		log:            logger.Nop(),
		tokenTTL:       ttl,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
		now:            time.Now,
	}
}

// WithLogger sets the logger used for cache and sweeper failures.
func (s *Service) WithLogger(log *logger.Logger) *Service {
	if log != nil {
		s.log = log.With("service", "auth")
	}
	return s
}

// IssueToken mints a new random token for the user and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	var lastErr error
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
			token, userID, now, expiresAt,
		)
		if err == nil {
			s.cacheToken(ctx, token, userID, s.tokenTTL)
			return token, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("could not issue token: %w", lastErr)
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken verifies the token exists and has not expired, returning the user id.
func (s *Service) ValidateToken(ctx context.Context, authToken string) (string, error) {
	if authToken == "" {
		return "", ErrTokenRequired
	}
	if s.rdb != nil {
		if userID, err := s.rdb.Get(ctx, redisTokenPrefix+authToken); err == nil && userID != "" {
			return userID, nil
		} else if err != nil && !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("token cache lookup failed", "error", err)
		}
	}

	var userID string
	var expires time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at FROM user_tokens WHERE token = ?`, authToken,
	).Scan(&userID, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	now := s.now().UTC()
	if now.After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken)
		return "", ErrTokenExpired
	}
	s.cacheToken(ctx, authToken, userID, expires.Sub(now))
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, authToken string) error {
	if authToken == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, authToken); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.uncacheTokens(ctx, authToken)
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	tokens, err := s.userTokens(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	s.uncacheTokens(ctx, tokens...)
	return nil
}

func (s *Service) userTokens(ctx context.Context, userID string) ([]string, error) {
	if s.rdb == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM user_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tokens: %w", err)
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func (s *Service) cacheToken(ctx context.Context, token, userID string, ttl time.Duration) {
	if s.rdb == nil || ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, redisTokenPrefix+token, userID, ttl); err != nil {
		s.log.Warn("cache token failed", "error", err)
	}
}

func (s *Service) uncacheTokens(ctx context.Context, tokens ...string) {
	if s.rdb == nil || len(tokens) == 0 {
		return
	}
	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = redisTokenPrefix + t
	}
	if err := s.rdb.Del(ctx, keys...); err != nil {
		s.log.Warn("evict cached tokens failed", "error", err)
	}
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthCookieName returns the cookie name storing auth tokens.
func (s *Service) AuthCookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}

// TokenTTL reports the configured token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}
