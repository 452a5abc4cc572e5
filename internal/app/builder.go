package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"querydeck/internal/aggregate"
	"querydeck/internal/catalog"
	qdcfg "querydeck/internal/config"
	"querydeck/internal/controller"
	"querydeck/internal/dispatch"
	"querydeck/internal/gateway/backend"
	"querydeck/internal/logger"
	"querydeck/internal/query"
	"querydeck/internal/slots"
	consolehttp "querydeck/internal/transport/http/console"
)

// Backend is everything the app needs from the query backend.
type Backend interface {
	dispatch.Backend
	catalog.Source
}

type AppBuilder struct {
	cfg *qdcfg.Config

	selectionOverride func(query.Selection) query.Selection
	alerter           controller.Alerter
	skipHTTP          bool
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *qdcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableExchangeDump(cfg.App.DumpExchanges)

	client, err := buildBackendClient(cfg.Backend, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}

	models := catalog.NewLoader(nil)
	if cfg.Catalog.Enabled {
		models = catalog.NewLoader(client)
	}
	models.Load(ctx)

	layout, selection, err := b.loadLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	if b.selectionOverride != nil {
		selection = overrideSelection{base: selection, fn: b.selectionOverride}
	}

	agg := aggregate.New()
	ctl, err := controller.New(controller.Deps{
		Builder:    query.NewBuilder(models),
		Dispatcher: dispatch.NewDispatcher(client),
		Aggregator: agg,
		Selection:  selection,
		Alerter:    b.alerter,
	})
	if err != nil {
		return nil, err
	}

	var server *consolehttp.Server
	if !b.skipHTTP {
		server, err = buildConsoleHTTPServer(cfg.App, consolehttp.ServerConfig{
			Submitter: ctl,
			Models:    models,
		})
		if err != nil {
			return nil, fmt.Errorf("console http server: %w", err)
		}
	}

	app := &App{
		cfg:         cfg,
		catalog:     models,
		aggregator:  agg,
		controller:  ctl,
		consoleHTTP: server,
	}
	app.Summary = buildSummary(cfg, models, selection, layout)
	return app, nil
}

// loadLayout opens the slot layout registry. A missing file falls back to a
// single-endpoint layout so one-shot use works without one. One-shot builds
// never watch the file.
func (b *AppBuilder) loadLayout(cfg qdcfg.LayoutConfig) (*slots.Registry, controller.SelectionSource, error) {
	path := strings.TrimSpace(cfg.Path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("slot layout %s not found, using single endpoint mode", path)
		return nil, fixedSelection{Mode: query.ModeSingle}, nil
	}
	reg, err := slots.NewRegistry(path, cfg.Watch && !b.skipHTTP)
	if err != nil {
		return nil, nil, fmt.Errorf("slot layout: %w", err)
	}
	reg.OnChange(func(s slots.Snapshot) {
		logger.Infof("slot layout v%d active from next submission: mode=%s slots=%d", s.Version, s.Layout.Mode, len(s.Layout.Slots))
	})
	return reg, reg, nil
}

func buildBackendClient(cfg qdcfg.BackendConfig, cat qdcfg.CatalogConfig) (Backend, error) {
	return backend.NewClient(backend.Config{
		BaseURL: cfg.BaseURL,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Headers: cfg.Headers,
		Endpoints: backend.Endpoints{
			Single:      cfg.Endpoints.Single,
			Multiplexed: cfg.Endpoints.Multiplexed,
			ProviderDir: cfg.Endpoints.ProviderDir,
			Model:       cfg.Endpoints.Model,
			Models:      cat.Path,
		},
	})
}

func buildConsoleHTTPServer(cfg qdcfg.AppConfig, deps consolehttp.ServerConfig) (*consolehttp.Server, error) {
	deps.Addr = cfg.HTTPAddr
	deps.Production = cfg.IsProduction()
	return consolehttp.NewServer(deps)
}

type fixedSelection query.Selection

func (s fixedSelection) Selection() query.Selection { return query.Selection(s) }

type overrideSelection struct {
	base controller.SelectionSource
	fn   func(query.Selection) query.Selection
}

func (o overrideSelection) Selection() query.Selection {
	return o.fn(o.base.Selection())
}

// WithoutHTTP skips the console server, for one-shot commands.
func WithoutHTTP() AppBuilderOption {
	return func(b *AppBuilder) {
		b.skipHTTP = true
	}
}

// WithSelectionOverride rewrites the layout's selection at every submit.
func WithSelectionOverride(fn func(query.Selection) query.Selection) AppBuilderOption {
	return func(b *AppBuilder) {
		b.selectionOverride = fn
	}
}

func WithAlerter(a controller.Alerter) AppBuilderOption {
	return func(b *AppBuilder) {
		b.alerter = a
	}
}
