package reconcile

import (
	"context"
	"time"

	"github.com/smallbiznis/paylens/internal/clock"
	"github.com/smallbiznis/paylens/internal/config"
	obsmetrics "github.com/smallbiznis/paylens/internal/observability/metrics"
	"github.com/smallbiznis/paylens/internal/pushevents"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RegistryParams struct {
	fx.In

	Config  config.Config
	Fetcher Fetcher
	Hub     *pushevents.Hub
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *obsmetrics.ReconcileMetrics
}

func ProvideRegistry(lc fx.Lifecycle, p RegistryParams) *Registry {
	registry := NewRegistry(p.Fetcher, p.Hub, p.Clock, p.Log, RegistryOptions{
		IdleTTL: time.Duration(p.Config.ViewModelIdleSeconds) * time.Second,
		Metrics: p.Metrics,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			registry.Close()
			return nil
		},
	})
	return registry
}

var Module = fx.Module("reconcile",
	fx.Provide(
		NewCachedFetcher,
		ProvideRegistry,
	),
)
