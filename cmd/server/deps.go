package main

import (
	"context"
	"fmt"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/progress"
	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/upload"
	"go.uber.org/zap"
)

func openIndex(ctx context.Context, cfg database.Config, logger *zap.Logger) (upload.Index, func(), error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory file index, records are lost on restart")
		return database.NewMemoryDB(), func() {}, nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func openProgress(ctx context.Context, cfg progress.Config, logger *zap.Logger) (*progress.Store, func(), error) {
	ttls := progress.WithTTLs(cfg.ActiveTTL, cfg.CompletedTTL)

	if cfg.Driver == "badger" {
		kv, err := progress.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		return progress.NewStore(progress.NewBadgerRepository(kv), logger, ttls), func() { kv.Close() }, nil
	}

	client := progress.NewRedisClient(cfg.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return progress.NewStore(progress.NewRedisRepository(client), logger, ttls), func() { client.Close() }, nil
}
