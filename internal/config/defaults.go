package config

import (
	"strings"

	"github.com/spf13/viper"
)

// setting is one scalar configuration key and its default. Every setting can
// be overridden from the environment.
type setting struct {
	key string
	def any
}

var settings = []setting{
	{key: "app.env", def: "dev"},
	{key: "app.log_level", def: "info"},
	{key: "app.log_format", def: "text"},
	{key: "app.log_path", def: ""},
	{key: "app.http_addr", def: ":8090"},
	{key: "app.dump_exchanges", def: false},
	{key: "backend.base_url", def: "http://localhost:8080"},
	{key: "backend.timeout_seconds", def: 120},
	{key: "backend.endpoints.single", def: "/api/query"},
	{key: "backend.endpoints.multiplexed", def: "/api/query"},
	{key: "backend.endpoints.provider_dir", def: "/api"},
	{key: "backend.endpoints.model", def: "/query"},
	{key: "catalog.enabled", def: true},
	{key: "catalog.path", def: "/models"},
	{key: "layout.path", def: "configs/layout.yaml"},
	{key: "layout.watch", def: true},
}

// freeformPrefixes hold maps whose keys are chosen by the user.
var freeformPrefixes = []string{"backend.headers"}

// applyDefaults registers defaults with v. A key present in a file, even with
// a zero value, wins over its default.
func applyDefaults(v *viper.Viper) {
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
	}
}

// knownKey reports whether key is a setting, a section holding settings, a
// freeform map entry, or the include list.
func knownKey(key string) bool {
	if key == includeKey {
		return true
	}
	for _, prefix := range freeformPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	for _, s := range settings {
		if key == s.key || strings.HasPrefix(s.key, key+".") {
			return true
		}
	}
	return false
}

func (c *Config) normalize() {
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(c.App.LogLevel))
	c.App.LogFormat = strings.ToLower(strings.TrimSpace(c.App.LogFormat))
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.Headers == nil {
		c.Backend.Headers = map[string]string{}
	}
}
