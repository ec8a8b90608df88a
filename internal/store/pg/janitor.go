package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/userauth/internal/observability/logger"
)

// RunPurgeLoop calls PurgeExpired every interval until ctx is done. Expired
// rows are already invisible to reads; this only bounds table growth.
func (s *RefreshTokens) RunPurgeLoop(ctx context.Context, interval time.Duration) {
	log := logger.From(ctx).With(logger.Component("store.pg"), logger.Op("PurgeExpired"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := s.PurgeExpired(pctx)
			cancel()
			if err != nil {
				log.Warn("purge failed", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("expired refresh tokens purged", logger.Int("count", int(n)))
			}
		}
	}
}
