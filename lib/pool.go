package dbq

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"dbq/shared/logger"
)

// Pool owns the pooled connections to one database system. Create it with
// NewPool, establish it with Connect, and tear it down with Close. Every
// execution method leases its own connection for the duration of one call,
// so a single Pool is safe for concurrent use.
type Pool struct {
	cfg PoolConfig
	dsn string
	log logger.Logger

	mu        sync.Mutex
	db        *sqlx.DB
	connected bool
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogger injects the logger used for pool and cleanup events. The
// default is the package global logger (a stderr sink unless reconfigured).
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// WithDSN overrides the connection string handed to the driver. Backend
// adapters use this when the driver expects a different DSN syntax than
// PoolConfig.DSN produces.
func WithDSN(dsn string) Option {
	return func(p *Pool) {
		p.dsn = dsn
	}
}

// NewPool validates the configuration and returns an unconnected pool
// handle.
func NewPool(cfg PoolConfig, opts ...Option) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	p := &Pool{
		cfg: cfg,
		dsn: cfg.DSN(),
		log: logger.Log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Connect constructs the pooled data source and eagerly fills it with
// InitialPoolCount physical connections. It is idempotent: if the pool is
// already connected it returns immediately. On any construction or fill
// failure the pool stays disconnected and partial resources are discarded.
func (p *Pool) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connected {
		p.log.Info("connection pool already established", logger.String("host", p.cfg.Host))
		return nil
	}

	db, err := sqlx.Open(p.cfg.Driver, p.dsn)
	if err != nil {
		return fmt.Errorf("%w: open data source: %w", ErrConnection, err)
	}
	db.SetMaxIdleConns(p.cfg.InitialPoolCount)

	if err := p.fill(ctx, db); err != nil {
		if cerr := db.Close(); cerr != nil {
			p.log.Warn("failed to discard partially filled pool", logger.Err(cerr))
		}
		return fmt.Errorf("%w: fill pool: %w", ErrConnection, err)
	}

	p.db = db
	p.connected = true
	p.log.Info("connection pool established",
		logger.String("host", p.cfg.Host),
		logger.String("libraries", p.cfg.Libraries),
		logger.Int("size", p.cfg.InitialPoolCount))
	return nil
}

// fill warms the pool by opening InitialPoolCount physical connections and
// returning them all once each has been established.
func (p *Pool) fill(ctx context.Context, db *sqlx.DB) error {
	conns := make([]*sqlx.Conn, 0, p.cfg.InitialPoolCount)
	defer func() {
		for _, c := range conns {
			if err := c.Close(); err != nil {
				p.log.Warn("failed to return warm-up connection", logger.Err(err))
			}
		}
	}()

	for i := 0; i < p.cfg.InitialPoolCount; i++ {
		conn, err := db.Connx(ctx)
		if err != nil {
			return err
		}
		conns = append(conns, conn)
	}
	return nil
}

// Close releases every pooled physical connection. It is idempotent: a pool
// that was never connected (or is already closed) returns immediately. The
// pool is unusable afterwards until Connect rebuilds it.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		p.log.Info("connection pool already closed")
		return nil
	}

	err := p.db.Close()
	p.db = nil
	p.connected = false
	if err != nil {
		return fmt.Errorf("%w: %w", ErrClose, err)
	}
	p.log.Info("connection pool closed", logger.String("host", p.cfg.Host))
	return nil
}

// Connected reports whether the pool is currently established.
func (p *Pool) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// acquire leases one physical connection. Blocking semantics when the pool
// is saturated are the underlying transport's own; no extra queueing policy
// is layered on top.
func (p *Pool) acquire(ctx context.Context) (*sqlx.Conn, error) {
	p.mu.Lock()
	db, ok := p.db, p.connected
	p.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: pool is not connected", ErrConnection)
	}
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %w", ErrConnection, err)
	}
	return conn, nil
}
