//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"querydeck/internal/config"

	"github.com/google/wire"
)

func buildAppWithWire(ctx context.Context, cfg *config.Config, opts []AppBuilderOption) (*App, error) {
	panic(wire.Build(appSet))
}
