package main

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/artpar/quotamon/adapters/dynamodb"
	redisstore "github.com/artpar/quotamon/adapters/redis"
	"github.com/artpar/quotamon/adapters/sqlite"
	"github.com/artpar/quotamon/config"
	"github.com/artpar/quotamon/ports"
)

var (
	// Shared by the usage and check commands
	serverURL   string
	serverToken string
)

// openCounterStore connects to the configured counter store for direct
// inspection. The memory backend is process-local and cannot be reached
// from the CLI; query the running server instead.
func openCounterStore(cfg *config.Config) (ports.CounterStore, func() error, error) {
	noClose := func() error { return nil }

	switch cfg.Store.Backend {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return sqlite.NewCounterStore(db), db.Close, nil

	case "dynamodb":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Store.DynamoDB.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Store.DynamoDB.Region))
		}
		if cfg.AWS.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, "")))
		}
		if cfg.AWS.Endpoint != "" {
			opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.Endpoint))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return dynamodb.New(awsCfg, cfg.Store.DynamoDB.Table), noClose, nil

	case "redis":
		store := redisstore.NewCounterStore(redisstore.Options{
			Addr:      cfg.Store.Redis.Addr,
			Password:  cfg.Store.Redis.Password,
			DB:        cfg.Store.Redis.DB,
			KeyPrefix: cfg.Store.Redis.KeyPrefix,
			TTL:       cfg.Store.Redis.TTL,
		})
		return store, store.Close, nil

	case "memory":
		return nil, nil, fmt.Errorf("memory store is process-local; use --server to query the running server")

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
}

func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
