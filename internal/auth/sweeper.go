package auth

import (
	"context"
	"fmt"
	"time"
)

const DefaultTokenSweepInterval = time.Hour

// StartTokenSweeper deletes expired tokens on a ticker until ctx is done.
func (s *Service) StartTokenSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTokenSweepInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredTokens(ctx)
			if err != nil {
				s.log.Error("sweep expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.log.Info("swept expired tokens", "count", n)
			}
		}
	}
}

// PurgeExpiredTokens removes every token past its expiry and returns how many went.
// Cached copies expire on their own TTL.
func (s *Service) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
