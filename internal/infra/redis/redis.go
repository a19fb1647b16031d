package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"github.com/sifan077/clicklink/config"
)

const (
	pingTimeout      = 5 * time.Second
	defaultIOTimeout = 3 * time.Second
	clientName       = "clicklink"
)

// Options translates app config into go-redis options. Context deadlines
// are honoured so a slow Redis surfaces as a store error within the
// caller's budget instead of stalling a redirect.
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr: net.JoinHostPort(
			lo.CoalesceOrEmpty(cfg.Host, "localhost"),
			strconv.Itoa(lo.CoalesceOrEmpty(cfg.Port, 6379)),
		),
		ClientName:            clientName,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              cfg.PoolSize,
		ReadTimeout:           defaultIOTimeout,
		WriteTimeout:          defaultIOTimeout,
		ContextTimeoutEnabled: true,
	}
}

// NewClient builds a redis client and verifies connectivity via PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", rdb.Options().Addr, err)
	}

	return rdb, nil
}
