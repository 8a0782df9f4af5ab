package licensor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/store"
)

// Licensor is the license, organization-quota and access-control engine.
// It holds no per-request state; every method is safe for concurrent use and
// relies on the store for consistency.
type Licensor struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	plans   *plan.Table
	sender  notify.Sender
	now     func() time.Time

	defaultService plan.Service

	identityCreates     singleflight.Group
	organizationCreates singleflight.Group
}

// New creates a new Licensor over s.
func New(s store.Store, opts ...Option) *Licensor {
	l := &Licensor{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		plans:          plan.DefaultTable(),
		now:            func() time.Time { return time.Now().UTC() },
		defaultService: plan.DefaultService,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.sender == nil {
		l.sender = notify.LogSender{Logger: l.logger}
	}
	_ = l.plugins.Register(notify.NewPlugin(l.sender, l.logger)) //nolint:errcheck // name is fixed; a caller-registered "notify" plugin wins

	return l
}

// Option configures a Licensor instance.
type Option func(*Licensor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Licensor) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Licensor) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each post-commit hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(l *Licensor) {
		l.plugins.WithTimeout(d)
	}
}

// WithPlanTable replaces the built-in token limit table.
func WithPlanTable(t *plan.Table) Option {
	return func(l *Licensor) {
		if t != nil {
			l.plans = t
			l.defaultService = t.DefaultService()
		}
	}
}

// WithSender sets the notification sender used for license emails.
func WithSender(s notify.Sender) Option {
	return func(l *Licensor) {
		l.sender = s
	}
}

// WithDefaultService sets the service used when a request names none.
func WithDefaultService(svc plan.Service) Option {
	return func(l *Licensor) {
		if svc != "" {
			l.defaultService = svc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Licensor) {
		l.now = now
	}
}

// Start migrates the store and initializes plugins.
func (l *Licensor) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return persistErr("migrate", err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("licensor started",
		"default_service", string(l.defaultService),
		"plugins", l.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Licensor) Stop(ctx context.Context) error {
	l.plugins.EmitShutdown(ctx)
	return l.store.Close()
}

// Store returns the underlying store.
func (l *Licensor) Store() store.Store { return l.store }

// Plugins returns the plugin registry.
func (l *Licensor) Plugins() *plugin.Registry { return l.plugins }

// Plans returns the token limit table.
func (l *Licensor) Plans() *plan.Table { return l.plans }

func (l *Licensor) service(svc plan.Service) plan.Service {
	if svc == "" {
		return l.defaultService
	}
	return svc
}

// sideEffectFailed records a swallowed failure of a best-effort step.
func (l *Licensor) sideEffectFailed(ctx context.Context, op string, err error, attrs ...any) {
	l.logger.WarnContext(ctx, "side effect failed",
		append([]any{"op", op, "error", err}, attrs...)...,
	)
	l.plugins.EmitSideEffectFailed(ctx, op, err)
}
