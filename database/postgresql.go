// Package database holds concrete backend adapters that map PoolConfig onto
// the DSN syntax a specific driver expects.
package database

import (
	"fmt"

	_ "github.com/lib/pq"

	dbq "dbq/lib"
)

// PostgresDriver is the database/sql driver name registered by lib/pq.
const PostgresDriver = "postgres"

// NewPostgresPool returns an unconnected pool targeting PostgreSQL through
// lib/pq. The Libraries qualifier becomes the session search_path; dbname is
// the name of the database to attach to.
func NewPostgresPool(cfg dbq.PoolConfig, dbname string, opts ...dbq.Option) (*dbq.Pool, error) {
	cfg.Driver = PostgresDriver

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Username, cfg.Password, dbname)
	if cfg.Libraries != "" {
		dsn += " search_path=" + cfg.Libraries
	}

	opts = append([]dbq.Option{dbq.WithDSN(dsn)}, opts...)
	return dbq.NewPool(cfg, opts...)
}
