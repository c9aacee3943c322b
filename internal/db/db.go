// internal/db/db.go
package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/config"
)

var DB *sql.DB

// Init opens the Postgres pool, applies pool limits and pings it.
func Init(ctx context.Context, cfg *config.DBConfig, log *zap.Logger) (*sql.DB, error) {
	log.Info("connecting to database",
		zap.String("db_user", cfg.User),
		zap.String("db_name", cfg.DBName),
		zap.String("db_host", cfg.Host),
	)

	conn, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	DB = conn
	log.Info("connected to database")
	return conn, nil
}
