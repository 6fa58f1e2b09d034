// Package bootstrap opens the backends named by the configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	redisad "lender_directory/internal/adapters/redis"
	"lender_directory/internal/adapters/rest"
	"lender_directory/internal/adapters/retry"
	"lender_directory/internal/adapters/s3blob"
	"lender_directory/internal/domain"
	"lender_directory/internal/shared"
	"lender_directory/internal/storage/memory"
	mysqlrepo "lender_directory/internal/storage/mysql"
	"lender_directory/internal/storage/postgres"
)

// Backend is an opened record store plus its health probe and cleanup.
type Backend struct {
	Store domain.RecordStore
	Ready func(ctx context.Context) error // nil when there is nothing to probe
	Close func()
}

// Store picks the record store by cfg.StoreDriver. SQL backends are wrapped
// in the retrying decorator; the REST client retries on its own.
func Store(ctx context.Context, cfg shared.Config) (Backend, error) {
	wrap := func(s domain.RecordStore) domain.RecordStore {
		return retry.NewStore(s, cfg.StoreRetries, cfg.StoreRPS)
	}

	switch cfg.StoreDriver {
	case "mysql":
		db, err := mysqlrepo.Open(cfg.MySQLDSN)
		if err != nil {
			return Backend{}, fmt.Errorf("mysql open: %w", err)
		}
		repo := mysqlrepo.New(db)
		if err := repo.Ping(ctx); err != nil {
			db.Close()
			return Backend{}, fmt.Errorf("mysql ping: %w", err)
		}
		log.Info().Msg("database connection ok")
		return Backend{Store: wrap(repo), Ready: repo.Ping, Close: func() { db.Close() }}, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return Backend{}, err
		}
		if cfg.PGMigrationsDir != "" {
			if err := postgres.ApplyMigrations(ctx, pool, cfg.PGMigrationsDir); err != nil {
				pool.Close()
				return Backend{}, err
			}
		}
		log.Info().Msg("database connection ok")
		return Backend{Store: wrap(postgres.New(pool)), Ready: pool.Ping, Close: pool.Close}, nil

	case "rest":
		c, err := rest.New(cfg.RestURL, cfg.RestKey, cfg.RestRPS)
		if err != nil {
			return Backend{}, fmt.Errorf("rest client: %w", err)
		}
		return Backend{Store: c, Close: func() {}}, nil

	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return Backend{Store: memory.New(), Close: func() {}}, nil
	}
	return Backend{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// Blobs returns the S3 bucket when BLOB_DRIVER=s3, else process memory.
func Blobs(ctx context.Context, cfg shared.Config) (domain.BlobStore, error) {
	switch cfg.BlobDriver {
	case "s3":
		s, err := s3blob.New(ctx, s3blob.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 blobs: %w", err)
		}
		return s, nil
	case "memory", "":
		return memory.NewBlobs(""), nil
	}
	return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
}

// Cache returns redis when REDIS_ADDR is set, else process memory.
func Cache(ctx context.Context, cfg shared.Config) domain.Cache {
	if cfg.RedisAddr == "" {
		return memory.NewCache()
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := c.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed; sessions unavailable until it recovers")
	}
	return c
}
