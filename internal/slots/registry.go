// Package slots loads the slot layout: which dispatch mode to use and which
// provider or model each slot is bound to. The layout file is watched, so
// slots can be rebound between submissions without a restart.
package slots

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"querydeck/internal/logger"
	"querydeck/internal/query"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed layout.schema.json
var layoutSchemaJSON string

var layoutSchema = jsonschema.MustCompileString("layout.schema.json", layoutSchemaJSON)

// Layout is the decoded layout file.
type Layout struct {
	Mode        string              `yaml:"mode" json:"mode"`
	Temperature *float64            `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Slots       []query.SlotBinding `yaml:"slots,omitempty" json:"slots,omitempty"`
}

// Selection converts the layout into what the request builder reads.
func (l Layout) Selection() query.Selection {
	sel := query.Selection{Mode: query.Mode(strings.TrimSpace(l.Mode))}
	if l.Temperature != nil {
		t := *l.Temperature
		sel.Temperature = &t
	}
	if len(l.Slots) > 0 {
		sel.Slots = append([]query.SlotBinding(nil), l.Slots...)
	}
	return sel
}

// Snapshot is the layout currently in force.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Layout   Layout
}

// ChangeListener runs after a successful reload.
type ChangeListener func(Snapshot)

// Registry holds the current layout and reloads it when the file changes. A
// reload that fails keeps the previous layout.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads path and, when watch is set, reloads it on every change.
func NewRegistry(path string, watch bool) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("slot layout registry requires path")
	}
	r := &Registry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	if watch {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read slot layout failed: %w", err)
		}
		v.OnConfigChange(func(evt fsnotify.Event) {
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				return
			}
			if err := r.Reload(); err != nil {
				logger.Errorf("slot layout reload failed, keeping version %d: %v", r.Snapshot().Version, err)
				return
			}
			r.notifyListeners()
		})
		v.WatchConfig()
		r.v = v
	}
	return r, nil
}

// Watching reports whether file changes are picked up automatically.
func (r *Registry) Watching() bool { return r.v != nil }

// Path is the layout file being served.
func (r *Registry) Path() string { return r.path }

// Snapshot returns the current layout.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Selection returns the current layout as a builder selection.
func (r *Registry) Selection() query.Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Layout.Selection()
}

// OnChange registers fn for successful reloads.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Reload re-reads the file now.
func (r *Registry) Reload() error {
	layout, err := ReadLayoutFile(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Layout:   layout,
	}
	version := r.snapshot.Version
	r.mu.Unlock()
	logger.Infof("slot layout v%d loaded from %s: mode=%s slots=%d", version, filepath.Base(r.path), layout.Mode, len(layout.Slots))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("slot layout listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	if src.Layout.Temperature != nil {
		t := *src.Layout.Temperature
		dst.Layout.Temperature = &t
	}
	dst.Layout.Slots = append([]query.SlotBinding(nil), src.Layout.Slots...)
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

// ReadLayoutFile decodes and validates one layout file.
func ReadLayoutFile(path string) (Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read slot layout failed: %w", err)
	}
	return ParseLayout(raw)
}

// ParseLayout decodes YAML strictly and checks it against the layout schema.
func ParseLayout(raw []byte) (Layout, error) {
	var layout Layout
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil {
		return Layout{}, fmt.Errorf("parse slot layout failed: %w", err)
	}
	layout.Mode = strings.ToLower(strings.TrimSpace(layout.Mode))
	if err := validateLayout(layout); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

func validateLayout(layout Layout) error {
	encoded, err := json.Marshal(layout)
	if err != nil {
		return fmt.Errorf("encode slot layout: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode slot layout: %w", err)
	}
	if err := layoutSchema.Validate(doc); err != nil {
		return fmt.Errorf("invalid slot layout: %w", err)
	}
	return nil
}
