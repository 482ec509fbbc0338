package pushevents

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/paylens/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewRedisClient connects to redis when an address is configured. A nil
// client keeps the hub single-instance, which is fine for local setups.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return client.Close()
		},
	})
	log.Info("redis configured for push-event fanout", zap.String("addr", cfg.RedisAddr))
	return client
}

func startBridge(lc fx.Lifecycle, pub Publisher) {
	bridge, ok := pub.(*RedisBridge)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = ctx
			bridge.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			bridge.Stop()
			return nil
		},
	})
}

var Module = fx.Module("pushevents",
	fx.Provide(
		NewHub,
		NewRedisClient,
		NewPublisher,
	),
	fx.Invoke(startBridge),
)
