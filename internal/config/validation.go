package config

import (
	"fmt"
	"net/url"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Backend.validate(); err != nil {
		return err
	}
	if err := c.Catalog.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Layout.Path) == "" {
		return fmt.Errorf("layout.path cannot be empty")
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug|info|warn|error, got %q", a.LogLevel)
	}
	switch a.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (b *BackendConfig) validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("backend.base_url cannot be empty")
	}
	u, err := url.Parse(b.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.base_url is missing a host")
	}
	if b.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be >= 0")
	}
	for name, path := range map[string]string{
		"single":       b.Endpoints.Single,
		"multiplexed":  b.Endpoints.Multiplexed,
		"provider_dir": b.Endpoints.ProviderDir,
		"model":        b.Endpoints.Model,
	} {
		if err := validatePath("backend.endpoints."+name, path); err != nil {
			return err
		}
	}
	for k := range b.Headers {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("backend.headers contains an empty header name")
		}
	}
	return nil
}

func (c *CatalogConfig) validate() error {
	if !c.Enabled {
		return nil
	}
	return validatePath("catalog.path", c.Path)
}

func validatePath(key, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%s cannot be empty", key)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%s must start with /, got %q", key, path)
	}
	if strings.ContainsAny(path, "?#") {
		return fmt.Errorf("%s must be a bare path, got %q", key, path)
	}
	return nil
}
