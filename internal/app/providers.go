package app

import (
	"context"

	"querydeck/internal/config"

	"github.com/google/wire"
)

var appSet = wire.NewSet(
	provideAppBuilder,
	provideAppFromBuilder,
	wire.Bind(new(appBuilderDeps), new(*AppBuilder)),
)

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config, opts []AppBuilderOption) *AppBuilder {
	return NewAppBuilder(cfg, opts...)
}
