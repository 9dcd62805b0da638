package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"oh-opus/internal/config"
	"oh-opus/internal/convert"
	"oh-opus/internal/diagnostics"
	"oh-opus/internal/domain"
	"oh-opus/internal/logging"
)

type commandContext struct {
	configPath string
	logLevel   string
	logFile    string

	deps     func(*zap.Logger) convert.Deps
	discover func(context.Context, *zap.Logger, domain.BinaryPaths) domain.BinaryPaths
}

func newCommandContext() *commandContext {
	return &commandContext{
		deps: convert.DefaultDeps,
		discover: func(ctx context.Context, logger *zap.Logger, configured domain.BinaryPaths) domain.BinaryPaths {
			return diagnostics.NewChecker(logger).Discover(ctx, configured)
		},
	}
}

// settingsPath returns the --config value or the shared desktop settings file.
func (c *commandContext) settingsPath() (string, error) {
	if path := strings.TrimSpace(c.configPath); path != "" {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return "", fmt.Errorf("resolve config path: %w", err)
		}
		return expanded, nil
	}
	return config.SettingsPath()
}

func (c *commandContext) store() (*config.FileStore, error) {
	path, err := c.settingsPath()
	if err != nil {
		return nil, err
	}
	return config.NewFileStore(path), nil
}

func (c *commandContext) loadSettings() (domain.Settings, error) {
	store, err := c.store()
	if err != nil {
		return domain.Settings{}, err
	}
	settings, err := store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings from %s: %w", store.Path(), err)
	}
	return settings, nil
}

func (c *commandContext) logger(console io.Writer) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:   c.logLevel,
		File:    c.logFile,
		Console: console,
	})
}
