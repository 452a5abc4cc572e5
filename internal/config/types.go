package config

import "strings"

// Config is the querydeck configuration root.
type Config struct {
	App     AppConfig     `toml:"app"`
	Backend BackendConfig `toml:"backend"`
	Catalog CatalogConfig `toml:"catalog"`
	Layout  LayoutConfig  `toml:"layout"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"` // text | json
	LogPath       string `toml:"log_path"`   // empty logs to stdout only
	HTTPAddr      string `toml:"http_addr"`
	DumpExchanges bool   `toml:"dump_exchanges"`
}

// BackendConfig points at the server that talks to the LLM providers.
type BackendConfig struct {
	BaseURL        string            `toml:"base_url"`
	TimeoutSeconds int               `toml:"timeout_seconds"` // 0 disables the client timeout
	Headers        map[string]string `toml:"headers"`
	Endpoints      EndpointsConfig   `toml:"endpoints"`
}

type EndpointsConfig struct {
	Single      string `toml:"single"`
	Multiplexed string `toml:"multiplexed"`
	ProviderDir string `toml:"provider_dir"`
	Model       string `toml:"model"`
}

type CatalogConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type LayoutConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// IsProduction reports whether app.env names a production deployment.
func (a AppConfig) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(a.Env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}
