package app

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"querydeck/internal/catalog"
	qdcfg "querydeck/internal/config"
	"querydeck/internal/controller"
	"querydeck/internal/slots"
)

type StartupSummary struct {
	Backend BackendSummary
	Catalog CatalogSummary
	Layout  LayoutSummary
	Console ConsoleSummary
}

type BackendSummary struct {
	BaseURL   string
	Timeout   int
	Endpoints map[string]string
	Headers   []string
}

type CatalogSummary struct {
	Enabled bool
	Models  []string
	Err     string
}

type LayoutSummary struct {
	Path    string
	Watch   bool
	Mode    string
	Slots   []string
	Missing bool
}

type ConsoleSummary struct {
	Addr string
}

func buildSummary(cfg *qdcfg.Config, models *catalog.Loader, sel controller.SelectionSource, reg *slots.Registry) *StartupSummary {
	s := &StartupSummary{
		Backend: BackendSummary{
			BaseURL: cfg.Backend.BaseURL,
			Timeout: cfg.Backend.TimeoutSeconds,
			Endpoints: map[string]string{
				"single":      cfg.Backend.Endpoints.Single,
				"multiplexed": cfg.Backend.Endpoints.Multiplexed,
				"provider":    strings.TrimRight(cfg.Backend.Endpoints.ProviderDir, "/") + "/<provider>",
				"model":       cfg.Backend.Endpoints.Model,
				"models":      cfg.Catalog.Path,
			},
		},
		Catalog: CatalogSummary{Enabled: cfg.Catalog.Enabled},
		Layout: LayoutSummary{
			Path:    cfg.Layout.Path,
			Missing: reg == nil,
		},
		Console: ConsoleSummary{Addr: cfg.App.HTTPAddr},
	}
	if reg != nil {
		s.Layout.Watch = reg.Watching()
	}
	for name := range cfg.Backend.Headers {
		s.Backend.Headers = append(s.Backend.Headers, name)
	}
	sort.Strings(s.Backend.Headers)
	for _, m := range models.Models() {
		s.Catalog.Models = append(s.Catalog.Models, m.Name)
	}
	if err := models.Err(); err != nil {
		s.Catalog.Err = err.Error()
	}
	current := sel.Selection()
	s.Layout.Mode = string(current.Mode)
	for i, bind := range current.Slots {
		target := strings.TrimSpace(bind.Provider)
		if bind.Model != "" {
			target = bind.Model
		}
		id := bind.ID
		if id == "" {
			id = fmt.Sprintf("#%d", i+1)
		}
		s.Layout.Slots = append(s.Layout.Slots, id+"="+target)
	}
	return s
}

func (s *StartupSummary) Print(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[BACKEND]")
	fmt.Fprintf(w, "  base url: %s\n", s.Backend.BaseURL)
	if s.Backend.Timeout > 0 {
		fmt.Fprintf(w, "  timeout:  %ds\n", s.Backend.Timeout)
	} else {
		fmt.Fprintln(w, "  timeout:  none")
	}
	names := make([]string, 0, len(s.Backend.Endpoints))
	for name := range s.Backend.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name+":", s.Backend.Endpoints[name])
	}
	fmt.Fprintf(w, "  headers:  %s\n", formatList(s.Backend.Headers))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[MODEL CATALOG]")
	switch {
	case !s.Catalog.Enabled:
		fmt.Fprintln(w, "  (disabled)")
	case s.Catalog.Err != "":
		fmt.Fprintf(w, "  load failed: %s\n", s.Catalog.Err)
	default:
		fmt.Fprintf(w, "  %d models: %s\n", len(s.Catalog.Models), formatList(s.Catalog.Models))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[SLOT LAYOUT]")
	if s.Layout.Missing {
		fmt.Fprintf(w, "  %s not found, single endpoint mode\n", s.Layout.Path)
	} else {
		fmt.Fprintf(w, "  file:  %s (watch=%t)\n", s.Layout.Path, s.Layout.Watch)
		fmt.Fprintf(w, "  mode:  %s\n", s.Layout.Mode)
		fmt.Fprintf(w, "  slots: %s\n", formatList(s.Layout.Slots))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[CONSOLE]")
	fmt.Fprintf(w, "  listen: %s\n", s.Console.Addr)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
