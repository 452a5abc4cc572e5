// Command querydeck sends one prompt to several LLM providers through a query
// backend and shows each provider's answer as it arrives.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	qdcfg "querydeck/internal/config"
	"querydeck/internal/logger"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

var (
	cfgPath string
	cfg     *qdcfg.Config
	logFile *os.File
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "querydeck",
		Short:         "Query several LLM providers at once and compare their answers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded
			f, err := setupLogOutput(cfg.App.LogPath)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			logFile = f
			logger.SetFormat(cfg.App.LogFormat)
			logger.SetLevel(cfg.App.LogLevel)
			logger.EnableExchangeDump(cfg.App.DumpExchanges)
			logger.Debugf("config loaded env=%s backend=%s", cfg.App.Env, cfg.Backend.BaseURL)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				_ = logFile.Close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigFromEnv(), "config file (env "+qdcfg.EnvName("config")+")")

	rootCmd.AddCommand(newServeCmd(), newAskCmd(), newModelsCmd())
	return rootCmd
}

func defaultConfigFromEnv() string {
	if p := strings.TrimSpace(os.Getenv(qdcfg.EnvName("config"))); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig reads path. The default path may be absent; defaults and
// environment overrides are used then.
func loadConfig(path string) (*qdcfg.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return qdcfg.Default()
		}
	}
	c, err := qdcfg.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return c, nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stderr, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
