//cmd/seeder/main.go
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/config"
	"github.com/unclebandit/retention-engine/internal/db"
	"github.com/unclebandit/retention-engine/internal/logger"
)

var seedFiles = []string{
	"seed/schema.sql",
	"seed/tenants.sql",
	"seed/members.sql",
	"seed/plays.sql",
}

func main() {
	cfg, err := config.Load("retention-seeder")
	if err != nil {
		panic(err)
	}
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: cfg.ServiceName,
	}); err != nil {
		panic(err)
	}
	log := logger.GetLogger()
	defer log.Sync()

	ctx := context.Background()
	conn, err := db.Init(ctx, &cfg.DB, log)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("failed to read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			log.Fatal("failed to execute seed file", zap.String("file", file), zap.Error(err))
		}
		log.Info("seeded", zap.String("file", file))
	}

	log.Info("database seeding completed")
}
