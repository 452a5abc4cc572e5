// Package catalog holds the session's model list, fetched once from the backend.
package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"querydeck/internal/gateway/backend"
	"querydeck/internal/logger"
	"querydeck/internal/query"
)

// Source lists the backend's models. *backend.Client satisfies it.
type Source interface {
	ListModels(ctx context.Context) ([]backend.ModelInfo, error)
}

// Loader fetches the catalog once. A failed load leaves it empty; model-mode
// submissions then need explicitly named models.
type Loader struct {
	source Source

	mu     sync.RWMutex
	models []query.Model
	index  map[string]query.Model
	loaded bool
	err    error
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source, index: make(map[string]query.Model)}
}

// Load fetches and stores the catalog, sorted by model name. Later calls
// return the stored catalog without another request.
func (l *Loader) Load(ctx context.Context) []query.Model {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return cloneModels(l.models)
	}
	l.loaded = true
	if l.source == nil {
		return nil
	}
	infos, err := l.source.ListModels(ctx)
	if err != nil {
		l.err = err
		logger.Warnf("model catalog load failed, catalog left empty: %v", err)
		return nil
	}
	models := make([]query.Model, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSpace(info.Name)
		if name == "" {
			continue
		}
		if _, dup := l.index[name]; dup {
			continue
		}
		m := query.Model{Name: name, Provider: query.NewProvider(info.Provider)}
		l.index[name] = m
		models = append(models, m)
	}
	sort.SliceStable(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	l.models = models
	logger.Infof("model catalog loaded: %d models", len(models))
	return cloneModels(models)
}

// Models returns the loaded catalog, empty before Load.
func (l *Loader) Models() []query.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneModels(l.models)
}

func (l *Loader) Lookup(name string) (query.Model, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.index[strings.TrimSpace(name)]
	return m, ok
}

// Loaded reports whether Load has run, successfully or not.
func (l *Loader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// Err is the error of the last load, if any.
func (l *Loader) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func cloneModels(in []query.Model) []query.Model {
	if len(in) == 0 {
		return nil
	}
	out := make([]query.Model, len(in))
	copy(out, in)
	return out
}
