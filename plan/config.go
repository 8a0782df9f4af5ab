package plan

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is returned when a limits document names an unknown plan
// or a negative limit.
var ErrInvalidTable = errors.New("plan: invalid limit table")

// TableConfig is the on-disk form of a Table.
//
//	default_service: alttext-ai
//	services:
//	  alttext-ai: {free: 50, pro: 1000, agency: 10000}
type TableConfig struct {
	DefaultService Service                      `yaml:"default_service" json:"default_service" mapstructure:"default_service"`
	Services       map[Service]map[string]int64 `yaml:"services" json:"services" mapstructure:"services"`
}

// Table validates the config and builds a Table. Services missing from the
// config keep their built-in limits.
func (c TableConfig) Table() (*Table, error) {
	limits := DefaultLimits()

	for svc, tiers := range c.Services {
		l := make(Limits, len(tiers))
		for name, n := range tiers {
			p := Parse(name)
			if !p.Valid() {
				return nil, fmt.Errorf("%w: service %s: unknown plan %q", ErrInvalidTable, svc, name)
			}
			if n < 0 {
				return nil, fmt.Errorf("%w: service %s: negative limit for %s", ErrInvalidTable, svc, p)
			}
			l[p] = n
		}
		if _, ok := l[Free]; !ok {
			return nil, fmt.Errorf("%w: service %s has no free tier", ErrInvalidTable, svc)
		}
		limits[svc] = l
	}

	def := c.DefaultService
	if def == "" {
		def = DefaultService
	}
	if _, ok := limits[def]; !ok {
		return nil, fmt.Errorf("%w: default service %s has no limits", ErrInvalidTable, def)
	}

	return NewTable(limits, def), nil
}

// ParseTable decodes a YAML limits document.
func ParseTable(data []byte) (*Table, error) {
	var cfg TableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("plan: decode limits: %w", err)
	}
	return cfg.Table()
}

// LoadTable reads a YAML limits document from path. A missing file yields
// the built-in table.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("plan: read limits: %w", err)
	}
	return ParseTable(data)
}

// Services lists the services the table has limits for.
func (t *Table) Services() []Service {
	out := make([]Service, 0, len(t.services))
	for svc := range t.services {
		out = append(out, svc)
	}
	return out
}
