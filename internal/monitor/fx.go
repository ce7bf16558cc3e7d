package monitor

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("monitor",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Run),
)

// Run starts the monitor loop on the master instance only.
func Run(lc fx.Lifecycle, cfg Config, m *Monitor, log *zap.Logger) {
	if !cfg.Enabled {
		log.Named("monitor").Info("reconciliation monitor disabled on this instance")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go m.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
