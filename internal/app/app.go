package app

import (
	"context"
	"fmt"
	"os"

	"querydeck/internal/aggregate"
	"querydeck/internal/catalog"
	qdcfg "querydeck/internal/config"
	"querydeck/internal/controller"
	"querydeck/internal/logger"
	"querydeck/internal/query"
	consolehttp "querydeck/internal/transport/http/console"

	"golang.org/x/sync/errgroup"
)

// App holds the wired components: catalog, slot layout, aggregator,
// submission controller and, when serving, the console HTTP server.
type App struct {
	cfg         *qdcfg.Config
	catalog     *catalog.Loader
	aggregator  *aggregate.Aggregator
	controller  *controller.Controller
	consoleHTTP *consolehttp.Server
	Summary     *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *qdcfg.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run serves the console API until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.consoleHTTP == nil {
		return fmt.Errorf("console http server not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print(os.Stdout)
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.consoleHTTP.Start(ctx); err != nil {
			return fmt.Errorf("console http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Ask submits one prompt and waits for every slot to settle.
func (a *App) Ask(ctx context.Context, prompt string) (aggregate.Snapshot, error) {
	if a == nil || a.controller == nil {
		return aggregate.Snapshot{}, fmt.Errorf("app not initialized")
	}
	sub, err := a.controller.Submit(ctx, prompt)
	if err != nil {
		return aggregate.Snapshot{}, err
	}
	if err := sub.Wait(ctx); err != nil {
		return a.aggregator.Snapshot(), err
	}
	return a.aggregator.Snapshot(), nil
}

// Models returns the catalog loaded at startup.
func (a *App) Models() []query.Model {
	if a == nil || a.catalog == nil {
		return nil
	}
	return a.catalog.Models()
}

// CatalogErr reports why the catalog is empty, if loading failed.
func (a *App) CatalogErr() error {
	if a == nil || a.catalog == nil {
		return nil
	}
	return a.catalog.Err()
}

func (a *App) Aggregator() *aggregate.Aggregator {
	if a == nil {
		return nil
	}
	return a.aggregator
}
