package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages registered plugins and dispatches hooks to them.
// Interfaces are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                 []OnInit
	onShutdown             []OnShutdown
	onLicenseCreated       []OnLicenseCreated
	onLicenseAttached      []OnLicenseAttached
	onLicenseUpgraded      []OnLicenseUpgraded
	onOrganizationCreated  []OnOrganizationCreated
	onOrganizationOrphaned []OnOrganizationOrphaned
	onSiteRegistered       []OnSiteRegistered
	onCreditsAdded         []OnCreditsAdded
	onCreditsDuplicate     []OnCreditsDuplicate
	onCreditsConsumed      []OnCreditsConsumed
	onCreditsRefunded      []OnCreditsRefunded
	onAccessEvaluated      []OnAccessEvaluated
	onCheckoutApplied      []OnCheckoutApplied
	onSideEffectFailed     []OnSideEffectFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
		hooks = append(hooks, "OnInit")
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
		hooks = append(hooks, "OnShutdown")
	}
	if v, ok := p.(OnLicenseCreated); ok {
		r.onLicenseCreated = append(r.onLicenseCreated, v)
		hooks = append(hooks, "OnLicenseCreated")
	}
	if v, ok := p.(OnLicenseAttached); ok {
		r.onLicenseAttached = append(r.onLicenseAttached, v)
		hooks = append(hooks, "OnLicenseAttached")
	}
	if v, ok := p.(OnLicenseUpgraded); ok {
		r.onLicenseUpgraded = append(r.onLicenseUpgraded, v)
		hooks = append(hooks, "OnLicenseUpgraded")
	}
	if v, ok := p.(OnOrganizationCreated); ok {
		r.onOrganizationCreated = append(r.onOrganizationCreated, v)
		hooks = append(hooks, "OnOrganizationCreated")
	}
	if v, ok := p.(OnOrganizationOrphaned); ok {
		r.onOrganizationOrphaned = append(r.onOrganizationOrphaned, v)
		hooks = append(hooks, "OnOrganizationOrphaned")
	}
	if v, ok := p.(OnSiteRegistered); ok {
		r.onSiteRegistered = append(r.onSiteRegistered, v)
		hooks = append(hooks, "OnSiteRegistered")
	}
	if v, ok := p.(OnCreditsAdded); ok {
		r.onCreditsAdded = append(r.onCreditsAdded, v)
		hooks = append(hooks, "OnCreditsAdded")
	}
	if v, ok := p.(OnCreditsDuplicate); ok {
		r.onCreditsDuplicate = append(r.onCreditsDuplicate, v)
		hooks = append(hooks, "OnCreditsDuplicate")
	}
	if v, ok := p.(OnCreditsConsumed); ok {
		r.onCreditsConsumed = append(r.onCreditsConsumed, v)
		hooks = append(hooks, "OnCreditsConsumed")
	}
	if v, ok := p.(OnCreditsRefunded); ok {
		r.onCreditsRefunded = append(r.onCreditsRefunded, v)
		hooks = append(hooks, "OnCreditsRefunded")
	}
	if v, ok := p.(OnAccessEvaluated); ok {
		r.onAccessEvaluated = append(r.onAccessEvaluated, v)
		hooks = append(hooks, "OnAccessEvaluated")
	}
	if v, ok := p.(OnCheckoutApplied); ok {
		r.onCheckoutApplied = append(r.onCheckoutApplied, v)
		hooks = append(hooks, "OnCheckoutApplied")
	}
	if v, ok := p.(OnSideEffectFailed); ok {
		r.onSideEffectFailed = append(r.onSideEffectFailed, v)
		hooks = append(hooks, "OnSideEffectFailed")
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// dispatch calls fn for every plugin in list. Errors are logged; nothing is
// returned so emitters cannot fail the operation that triggered them.
func dispatch[T Plugin](ctx context.Context, r *Registry, hook string, list func(*Registry) []T, fn func(T) error) {
	r.mu.RLock()
	plugins := list(r)
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin hook failed",
				"plugin", p.Name(),
				"hook", hook,
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	dispatch(ctx, r, "OnInit", func(r *Registry) []OnInit { return r.onInit },
		func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	dispatch(ctx, r, "OnShutdown", func(r *Registry) []OnShutdown { return r.onShutdown },
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitLicenseCreated emits a license created event.
func (r *Registry) EmitLicenseCreated(ctx context.Context, l *license.License) {
	dispatch(ctx, r, "OnLicenseCreated", func(r *Registry) []OnLicenseCreated { return r.onLicenseCreated },
		func(p OnLicenseCreated) error { return p.OnLicenseCreated(ctx, l) })
}

// EmitLicenseAttached emits a license attached event.
func (r *Registry) EmitLicenseAttached(ctx context.Context, l *license.License, s *site.Site, o *organization.Organization) {
	dispatch(ctx, r, "OnLicenseAttached", func(r *Registry) []OnLicenseAttached { return r.onLicenseAttached },
		func(p OnLicenseAttached) error { return p.OnLicenseAttached(ctx, l, s, o) })
}

// EmitLicenseUpgraded emits a license plan change event.
func (r *Registry) EmitLicenseUpgraded(ctx context.Context, l *license.License, from plan.Plan) {
	dispatch(ctx, r, "OnLicenseUpgraded", func(r *Registry) []OnLicenseUpgraded { return r.onLicenseUpgraded },
		func(p OnLicenseUpgraded) error { return p.OnLicenseUpgraded(ctx, l, from) })
}

// EmitOrganizationCreated emits an organization created event.
func (r *Registry) EmitOrganizationCreated(ctx context.Context, o *organization.Organization) {
	dispatch(ctx, r, "OnOrganizationCreated", func(r *Registry) []OnOrganizationCreated { return r.onOrganizationCreated },
		func(p OnOrganizationCreated) error { return p.OnOrganizationCreated(ctx, o) })
}

// EmitOrganizationOrphaned emits an orphaned organization anomaly.
func (r *Registry) EmitOrganizationOrphaned(ctx context.Context, o *organization.Organization, cause error) {
	dispatch(ctx, r, "OnOrganizationOrphaned", func(r *Registry) []OnOrganizationOrphaned { return r.onOrganizationOrphaned },
		func(p OnOrganizationOrphaned) error { return p.OnOrganizationOrphaned(ctx, o, cause) })
}

// EmitSiteRegistered emits a site registered event.
func (r *Registry) EmitSiteRegistered(ctx context.Context, s *site.Site, created bool) {
	dispatch(ctx, r, "OnSiteRegistered", func(r *Registry) []OnSiteRegistered { return r.onSiteRegistered },
		func(p OnSiteRegistered) error { return p.OnSiteRegistered(ctx, s, created) })
}

// EmitCreditsAdded emits a credits added event.
func (r *Registry) EmitCreditsAdded(ctx context.Context, e *credit.Entry, balance int64) {
	dispatch(ctx, r, "OnCreditsAdded", func(r *Registry) []OnCreditsAdded { return r.onCreditsAdded },
		func(p OnCreditsAdded) error { return p.OnCreditsAdded(ctx, e, balance) })
}

// EmitCreditsDuplicate emits an ignored replay event.
func (r *Registry) EmitCreditsDuplicate(ctx context.Context, e *credit.Entry, balance int64) {
	dispatch(ctx, r, "OnCreditsDuplicate", func(r *Registry) []OnCreditsDuplicate { return r.onCreditsDuplicate },
		func(p OnCreditsDuplicate) error { return p.OnCreditsDuplicate(ctx, e, balance) })
}

// EmitCreditsConsumed emits a credits consumed event.
func (r *Registry) EmitCreditsConsumed(ctx context.Context, e *credit.Entry, balance int64) {
	dispatch(ctx, r, "OnCreditsConsumed", func(r *Registry) []OnCreditsConsumed { return r.onCreditsConsumed },
		func(p OnCreditsConsumed) error { return p.OnCreditsConsumed(ctx, e, balance) })
}

// EmitCreditsRefunded emits a credits refunded event.
func (r *Registry) EmitCreditsRefunded(ctx context.Context, e *credit.Entry, balance int64) {
	dispatch(ctx, r, "OnCreditsRefunded", func(r *Registry) []OnCreditsRefunded { return r.onCreditsRefunded },
		func(p OnCreditsRefunded) error { return p.OnCreditsRefunded(ctx, e, balance) })
}

// EmitAccessEvaluated emits an access decision.
func (r *Registry) EmitAccessEvaluated(ctx context.Context, d access.Decision) {
	dispatch(ctx, r, "OnAccessEvaluated", func(r *Registry) []OnAccessEvaluated { return r.onAccessEvaluated },
		func(p OnAccessEvaluated) error { return p.OnAccessEvaluated(ctx, d) })
}

// EmitCheckoutApplied emits a checkout applied event.
func (r *Registry) EmitCheckoutApplied(ctx context.Context, ev billing.CheckoutCompleted) {
	dispatch(ctx, r, "OnCheckoutApplied", func(r *Registry) []OnCheckoutApplied { return r.onCheckoutApplied },
		func(p OnCheckoutApplied) error { return p.OnCheckoutApplied(ctx, ev) })
}

// EmitSideEffectFailed emits a swallowed side-effect failure.
func (r *Registry) EmitSideEffectFailed(ctx context.Context, op string, cause error) {
	dispatch(ctx, r, "OnSideEffectFailed", func(r *Registry) []OnSideEffectFailed { return r.onSideEffectFailed },
		func(p OnSideEffectFailed) error { return p.OnSideEffectFailed(ctx, op, cause) })
}

// callWithTimeout calls a plugin function with a timeout.
// A panicking plugin is reported as an error.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
