package extension

import (
	"time"

	"github.com/xraph/licensor/plan"
)

// Config holds the licensor extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.licensor" or "licensor" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// DefaultService is the service used when a request names none
	// (default: alttext-ai).
	DefaultService plan.Service `json:"default_service" mapstructure:"default_service" yaml:"default_service"`

	// Plans overrides the built-in token limits per service and plan.
	Plans plan.TableConfig `json:"plans" mapstructure:"plans" yaml:"plans"`

	// PlansFile is a YAML limits document loaded when Plans names no
	// services. A missing file keeps the built-in limits.
	PlansFile string `json:"plans_file" mapstructure:"plans_file" yaml:"plans_file"`

	// PluginTimeout bounds each post-commit plugin hook (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// EnableMetrics registers the Prometheus metrics plugin.
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics" yaml:"enable_metrics"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultService: plan.DefaultService,
		PluginTimeout:  5 * time.Second,
	}
}
