package extension

import (
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/store"
)

// Option configures the licensor Forge extension.
type Option func(*Extension)

// WithStore sets the store for the licensor engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLicensorOption passes a licensor.Option through to the underlying engine.
func WithLicensorOption(opt licensor.Option) Option {
	return func(e *Extension) {
		e.licensorOpts = append(e.licensorOpts, opt)
	}
}

// WithPlugin registers a licensor plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.licensorOpts = append(e.licensorOpts, licensor.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithDefaultService sets the service used when a request names none.
func WithDefaultService(svc plan.Service) Option {
	return func(e *Extension) { e.config.DefaultService = svc }
}

// WithPlansFile sets the YAML limits document to load.
func WithPlansFile(path string) Option {
	return func(e *Extension) { e.config.PlansFile = path }
}

// WithPluginTimeout bounds each post-commit plugin hook.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithMetrics registers the Prometheus metrics plugin.
func WithMetrics() Option {
	return func(e *Extension) { e.config.EnableMetrics = true }
}
