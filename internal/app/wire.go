//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"rangebot/internal/config"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config) (*App, error) {
	wire.Build(
		provideAppBuilder,
		provideAppFromBuilder,
		wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
	)
	return nil, nil
}
