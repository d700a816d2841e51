package subscription

import (
	"context"

	"go.uber.org/fx"

	"github.com/fatflowers/pcbuilder/internal/platform/shopify"
)

// Module exposes the subscription store and reconciler via Fx.
var Module = fx.Options(
	fx.Provide(
		NewStore,
		NewReconciler,
		func(c *shopify.Client) Gateway { return c },
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Store) {
		lc.Append(fx.Hook{OnStop: func(context.Context) error {
			s.Flush()
			return nil
		}})
	}),
)
