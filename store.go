package main

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/imagecheck/internal/config"
	"github.com/example/imagecheck/internal/healthcheck"
	"github.com/example/imagecheck/internal/repository"
	"github.com/example/imagecheck/internal/usecase"
)

// store is the backing store selected by STORE_DRIVER.
type store struct {
	records usecase.CheckResultRepository
	faces   usecase.FaceSetRepository
	ping    healthcheck.PingFunc
	close   func(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		return openMongoStore(ctx, cfg, logger)
	default:
		return openPostgresStore(ctx, cfg, logger)
	}
}

func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}

	records := repository.NewCheckResultRepository(db, logger)
	if err := records.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate check results: %w", err)
	}
	faces := repository.NewFaceSetRepository(db, logger)
	if err := faces.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate face sets: %w", err)
	}

	return &store{
		records: records,
		faces:   faces,
		ping:    records.Ping,
		close:   func(context.Context) error { return sqlDB.Close() },
	}, nil
}

func openMongoStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	db := client.Database(cfg.MongoDatabase)

	records := repository.NewMongoCheckResultRepository(db, logger)
	if err := records.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	if err := records.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure check result indexes: %w", err)
	}
	faces := repository.NewMongoFaceSetRepository(db, logger)
	if err := faces.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure face indexes: %w", err)
	}

	return &store{
		records: records,
		faces:   faces,
		ping:    records.Ping,
		close:   client.Disconnect,
	}, nil
}
