package main

import (
	"context"
	"os"

	"dbq/database"
	dbq "dbq/lib"
	"dbq/shared/logger"
)

// Demo entrypoint: loads the pool configuration, connects through the
// PostgreSQL adapter, and runs the SQL passed as the first argument.
func main() {
	path := os.Getenv("DBQ_CONFIG")
	if path == "" {
		path = "dbq.yaml"
	}

	cfg, err := dbq.LoadPoolConfig(path)
	if err != nil {
		logger.Error("failed to load pool configuration", logger.Err(err))
		os.Exit(1)
	}

	dbname := os.Getenv("DBQ_DBNAME")
	if dbname == "" {
		dbname = "postgres"
	}

	pool, err := database.NewPostgresPool(cfg, dbname)
	if err != nil {
		logger.Error("failed to build pool", logger.Err(err))
		os.Exit(1)
	}

	ctx := context.Background()
	if err := pool.Connect(ctx); err != nil {
		logger.Error("failed to connect", logger.Err(err))
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("failed to close pool", logger.Err(err))
		}
	}()

	if len(os.Args) < 2 {
		logger.Info("no statement given, connection check only")
		return
	}

	rows, err := pool.Query(ctx, os.Args[1])
	if err != nil {
		logger.Error("query failed", logger.Err(err))
		os.Exit(1)
	}
	logger.Info("query complete", logger.Int("rows", len(rows)))
	for _, row := range rows {
		logger.Info("row", logger.Any("data", row))
	}
}
