package dbq

import (
	"context"
	"fmt"

	"dbq/shared/logger"
)

// Ping verifies that the pool can still reach the database system by
// round-tripping one pooled connection.
func (p *Pool) Ping(ctx context.Context) error {
	p.mu.Lock()
	db, ok := p.db, p.connected
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: pool is not connected", ErrConnection)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrConnection, err)
	}
	p.log.Debug("pool health check passed", logger.String("host", p.cfg.Host))
	return nil
}
