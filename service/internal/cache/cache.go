// internal/cache/cache.go
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Rdb is the shared Redis client, nil when the relay runs without Redis.
var Rdb *redis.Client

// ConnectRedis opens the shared client and checks the server answers.
func ConnectRedis(ctx context.Context, addr, password string, db int) error {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", addr, err)
	}
	Rdb = client
	logrus.WithField("addr", addr).Info("connected to redis")
	return nil
}

// CloseRedis closes the shared client if one is open.
func CloseRedis() {
	if Rdb == nil {
		return
	}
	if err := Rdb.Close(); err != nil {
		logrus.WithError(err).Warn("closing redis client")
	}
	Rdb = nil
}
