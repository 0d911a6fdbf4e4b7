package main

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/local-cart/internal/config"
	"github.com/fjod/go_cart/local-cart/internal/storage"
	"github.com/fjod/go_cart/local-cart/internal/storage/breaker"
	"github.com/fjod/go_cart/local-cart/internal/storage/mongostore"
	"github.com/fjod/go_cart/local-cart/internal/storage/redisstore"
	"github.com/fjod/go_cart/local-cart/internal/storage/sqlstore"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// openStorage builds the backend named by cfg.StorageDriver. The returned cleanup
// releases its connections and must run after the cart store is closed.
func openStorage(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (storage.Storage, func(), error) {
	var (
		st      storage.Storage
		cleanup = func() {}
	)

	switch cfg.StorageDriver {
	case config.DriverMemory:
		st = storage.NewMemoryStorage()

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisotel.InstrumentTracing(client); err != nil {
			log.WithError(err).Warn("redis tracing disabled")
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		log.WithField("addr", cfg.RedisAddr).Info("redis ping succeeded")
		st = redisstore.NewRedisStorage(client, redisstore.WithTTL(cfg.CartTTL))
		cleanup = func() { client.Close() }

	case config.DriverMongo:
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDBName, mongostore.WithCollection(cfg.MongoCollection))
		if err != nil {
			return nil, nil, err
		}
		log.WithField("db", cfg.MongoDBName).Info("connected to mongodb")
		if cfg.CartTTL > 0 {
			if err := ms.CreateIndexes(ctx, cfg.CartTTL); err != nil {
				ms.Close(context.Background())
				return nil, nil, err
			}
		}
		st = ms
		cleanup = func() { ms.Close(context.Background()) }

	case config.DriverSQLite, config.DriverPostgres:
		dialect, dsn := sqlstore.SQLite, cfg.SQLitePath
		if cfg.StorageDriver == config.DriverPostgres {
			dialect, dsn = sqlstore.Postgres, cfg.PostgresDSN
		}
		ss, err := sqlstore.Open(dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := ss.RunMigrations(); err != nil {
			ss.Close()
			return nil, nil, err
		}
		log.WithField("dialect", string(dialect)).Info("sql storage ready")
		st = ss
		cleanup = func() { ss.Close() }

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	if cfg.BreakerEnabled && cfg.StorageDriver != config.DriverMemory {
		st = breaker.Wrap(st, breaker.DefaultSettings(cfg.StorageDriver), log)
	}

	return st, cleanup, nil
}
