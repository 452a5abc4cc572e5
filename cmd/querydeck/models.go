package main

import (
	"fmt"

	"querydeck/internal/app"
	"querydeck/internal/render"

	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Print the backend's model catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Catalog.Enabled {
				return fmt.Errorf("model catalog is disabled (catalog.enabled=false)")
			}
			a, err := app.NewApp(cfg, app.WithoutHTTP())
			if err != nil {
				return err
			}
			if err := a.CatalogErr(); err != nil {
				return fmt.Errorf("load models: %w", err)
			}
			term := render.NewTerminal(cmd.OutOrStdout(), !plain)
			fmt.Fprint(cmd.OutOrStdout(), term.Models(a.Models()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "no colors or decorations")
	return cmd
}
