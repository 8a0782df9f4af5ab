// Package extension provides the Forge extension adapter for licensor.
//
// It implements the forge.Extension interface to integrate the licensor
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.licensor" or "licensor" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/observability"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/store"
	"github.com/xraph/licensor/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "licensor"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "License, organization quota and access control engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts licensor as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *licensor.Licensor
	store        store.Store
	licensorOpts []licensor.Option
}

// New creates a new licensor Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Licensor instance.
// This is nil until Register is called.
func (e *Extension) Engine() *licensor.Licensor { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the licensor engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildLicensorOpts()
	if err != nil {
		return err
	}

	e.engine = licensor.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*licensor.Licensor, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("licensor: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("licensor: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLicensorOpts constructs licensor.Option values from the resolved config.
func (e *Extension) buildLicensorOpts() ([]licensor.Option, error) {
	opts := make([]licensor.Option, 0, len(e.licensorOpts)+4)

	table, err := e.config.planTable()
	if err != nil {
		return nil, fmt.Errorf("licensor: plan limits: %w", err)
	}
	if table != nil {
		opts = append(opts, licensor.WithPlanTable(table))
	}

	// Applied after the table, which carries its own default.
	if e.config.DefaultService != "" {
		opts = append(opts, licensor.WithDefaultService(e.config.DefaultService))
	}

	if e.config.PluginTimeout > 0 {
		opts = append(opts, licensor.WithPluginTimeout(e.config.PluginTimeout))
	}

	if e.config.EnableMetrics {
		factory := observability.NewPrometheusFactory(nil)
		opts = append(opts, licensor.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	// Append any pass-through licensor options.
	opts = append(opts, e.licensorOpts...)

	return opts, nil
}

// planTable resolves the limit table named by the config, or nil to keep
// the engine's built-in table.
func (c Config) planTable() (*plan.Table, error) {
	if len(c.Plans.Services) > 0 {
		cfg := c.Plans
		if cfg.DefaultService == "" {
			cfg.DefaultService = c.DefaultService
		}
		return cfg.Table()
	}
	if c.PlansFile != "" {
		return plan.LoadTable(c.PlansFile)
	}
	return nil, nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("licensor: configuration is required but not found in config files; " +
				"ensure 'extensions.licensor' or 'licensor' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("licensor: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("default_service", string(e.config.DefaultService)),
		forge.F("plans_file", e.config.PlansFile),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("enable_metrics", e.config.EnableMetrics),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.licensor", "licensor"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("licensor: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("licensor: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.DefaultService == "" {
		cfg.DefaultService = defaults.DefaultService
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableMetrics {
		yamlConfig.EnableMetrics = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.DefaultService == "" && programmaticConfig.DefaultService != "" {
		yamlConfig.DefaultService = programmaticConfig.DefaultService
	}
	if yamlConfig.PlansFile == "" && programmaticConfig.PlansFile != "" {
		yamlConfig.PlansFile = programmaticConfig.PlansFile
	}
	if len(yamlConfig.Plans.Services) == 0 && len(programmaticConfig.Plans.Services) > 0 {
		yamlConfig.Plans = programmaticConfig.Plans
	}

	if yamlConfig.PluginTimeout == 0 && programmaticConfig.PluginTimeout != 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
