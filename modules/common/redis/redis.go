package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"clip-wizard-server/modules/common/config"
	"github.com/redis/go-redis/v9"
)

// Options - client options built from config
func Options(cfg *config.Config) *redis.Options {
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.RedisHost,
		}
	}

	return &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// Connect - create the client and ping it
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	log.Printf("🔌 [Redis] Connecting to %s", cfg.GetRedisAddr())

	rdb := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Printf("✅ [Redis] Connected")
	return rdb, nil
}
