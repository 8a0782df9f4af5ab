// Package observability provides a metrics extension for licensor that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/site"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnLicenseCreated       = (*MetricsExtension)(nil)
	_ plugin.OnLicenseAttached      = (*MetricsExtension)(nil)
	_ plugin.OnLicenseUpgraded      = (*MetricsExtension)(nil)
	_ plugin.OnOrganizationCreated  = (*MetricsExtension)(nil)
	_ plugin.OnOrganizationOrphaned = (*MetricsExtension)(nil)
	_ plugin.OnSiteRegistered       = (*MetricsExtension)(nil)
	_ plugin.OnCreditsAdded         = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDuplicate     = (*MetricsExtension)(nil)
	_ plugin.OnCreditsConsumed      = (*MetricsExtension)(nil)
	_ plugin.OnCreditsRefunded      = (*MetricsExtension)(nil)
	_ plugin.OnAccessEvaluated      = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutApplied      = (*MetricsExtension)(nil)
	_ plugin.OnSideEffectFailed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a licensor plugin to track licensing and credit metrics.
type MetricsExtension struct {
	factory MetricFactory

	// License metrics
	LicenseCreated  Counter
	LicenseAttached Counter
	LicenseUpgraded Counter

	// Organization metrics
	OrganizationCreated  Counter
	OrganizationOrphaned Counter
	SiteRegistered       Counter
	SiteReactivated      Counter

	// Credit metrics
	CreditsAdded      Counter
	CreditsDuplicate  Counter
	CreditsConsumed   Counter
	CreditsRefunded   Counter
	CreditsGranted    Histogram
	BalanceAfterEntry Histogram

	// Access metrics
	AccessGranted Counter
	AccessDenied  Counter

	// Billing metrics
	CheckoutApplied Counter
	CheckoutCredits Histogram

	// Error metrics
	SideEffectFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory standalone.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		LicenseCreated:  factory.Counter("licensor.license.created"),
		LicenseAttached: factory.Counter("licensor.license.attached"),
		LicenseUpgraded: factory.Counter("licensor.license.upgraded"),

		OrganizationCreated:  factory.Counter("licensor.organization.created"),
		OrganizationOrphaned: factory.Counter("licensor.organization.orphaned"),
		SiteRegistered:       factory.Counter("licensor.site.registered"),
		SiteReactivated:      factory.Counter("licensor.site.reactivated"),

		CreditsAdded:      factory.Counter("licensor.credits.added"),
		CreditsDuplicate:  factory.Counter("licensor.credits.duplicate"),
		CreditsConsumed:   factory.Counter("licensor.credits.consumed"),
		CreditsRefunded:   factory.Counter("licensor.credits.refunded"),
		CreditsGranted:    factory.Histogram("licensor.credits.granted"),
		BalanceAfterEntry: factory.Histogram("licensor.credits.balance"),

		AccessGranted: factory.Counter("licensor.access.granted"),
		AccessDenied:  factory.Counter("licensor.access.denied"),

		CheckoutApplied: factory.Counter("licensor.checkout.applied"),
		CheckoutCredits: factory.Histogram("licensor.checkout.credits"),

		SideEffectFailures: factory.Counter("licensor.side_effect.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// License lifecycle hooks
// ──────────────────────────────────────────────────

// OnLicenseCreated implements plugin.OnLicenseCreated.
func (m *MetricsExtension) OnLicenseCreated(_ context.Context, _ *license.License) error {
	m.LicenseCreated.Inc()
	return nil
}

// OnLicenseAttached implements plugin.OnLicenseAttached.
func (m *MetricsExtension) OnLicenseAttached(_ context.Context, _ *license.License, _ *site.Site, _ *organization.Organization) error {
	m.LicenseAttached.Inc()
	return nil
}

// OnLicenseUpgraded implements plugin.OnLicenseUpgraded.
func (m *MetricsExtension) OnLicenseUpgraded(_ context.Context, _ *license.License, _ plan.Plan) error {
	m.LicenseUpgraded.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Organization and site hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (m *MetricsExtension) OnOrganizationCreated(_ context.Context, _ *organization.Organization) error {
	m.OrganizationCreated.Inc()
	return nil
}

// OnOrganizationOrphaned implements plugin.OnOrganizationOrphaned.
func (m *MetricsExtension) OnOrganizationOrphaned(_ context.Context, _ *organization.Organization, _ error) error {
	m.OrganizationOrphaned.Inc()
	return nil
}

// OnSiteRegistered implements plugin.OnSiteRegistered.
func (m *MetricsExtension) OnSiteRegistered(_ context.Context, _ *site.Site, created bool) error {
	if created {
		m.SiteRegistered.Inc()
	} else {
		m.SiteReactivated.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (m *MetricsExtension) OnCreditsAdded(_ context.Context, e *credit.Entry, balance int64) error {
	m.CreditsAdded.Inc()
	m.CreditsGranted.Observe(float64(e.Amount))
	m.BalanceAfterEntry.Observe(float64(balance))
	return nil
}

// OnCreditsDuplicate implements plugin.OnCreditsDuplicate.
func (m *MetricsExtension) OnCreditsDuplicate(_ context.Context, _ *credit.Entry, _ int64) error {
	m.CreditsDuplicate.Inc()
	return nil
}

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (m *MetricsExtension) OnCreditsConsumed(_ context.Context, e *credit.Entry, balance int64) error {
	m.CreditsConsumed.Add(float64(-e.Amount))
	m.BalanceAfterEntry.Observe(float64(balance))
	return nil
}

// OnCreditsRefunded implements plugin.OnCreditsRefunded. The counter tracks
// credits removed, not refund events.
func (m *MetricsExtension) OnCreditsRefunded(_ context.Context, e *credit.Entry, balance int64) error {
	m.CreditsRefunded.Add(float64(-e.Amount))
	m.BalanceAfterEntry.Observe(float64(balance))
	return nil
}

// ──────────────────────────────────────────────────
// Access and billing hooks
// ──────────────────────────────────────────────────

// OnAccessEvaluated implements plugin.OnAccessEvaluated.
func (m *MetricsExtension) OnAccessEvaluated(_ context.Context, d access.Decision) error {
	if d.Allowed {
		m.AccessGranted.Inc()
	} else {
		m.AccessDenied.Inc()
	}
	return nil
}

// OnCheckoutApplied implements plugin.OnCheckoutApplied.
func (m *MetricsExtension) OnCheckoutApplied(_ context.Context, ev billing.CheckoutCompleted) error {
	m.CheckoutApplied.Inc()
	if ev.Credits > 0 {
		m.CheckoutCredits.Observe(float64(ev.Credits))
	}
	return nil
}

// OnSideEffectFailed implements plugin.OnSideEffectFailed.
func (m *MetricsExtension) OnSideEffectFailed(_ context.Context, _ string, _ error) error {
	m.SideEffectFailures.Inc()
	return nil
}
