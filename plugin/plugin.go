// Package plugin provides the post-commit hook system for licensor.
//
// Hooks run after the primary write has succeeded. A failing or slow hook is
// logged by the Registry and never reaches the caller of the operation that
// triggered it.
package plugin

import (
	"context"

	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// License hooks
// ──────────────────────────────────────────────────

// OnLicenseCreated is called after a license is persisted.
type OnLicenseCreated interface {
	Plugin
	OnLicenseCreated(ctx context.Context, l *license.License) error
}

// OnLicenseAttached is called after a license is bound to a site.
type OnLicenseAttached interface {
	Plugin
	OnLicenseAttached(ctx context.Context, l *license.License, s *site.Site, o *organization.Organization) error
}

// OnLicenseUpgraded is called after a license changes plan.
type OnLicenseUpgraded interface {
	Plugin
	OnLicenseUpgraded(ctx context.Context, l *license.License, from plan.Plan) error
}

// ──────────────────────────────────────────────────
// Organization and site hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated is called after an organization and its owner
// membership are written.
type OnOrganizationCreated interface {
	Plugin
	OnOrganizationCreated(ctx context.Context, o *organization.Organization) error
}

// OnOrganizationOrphaned is called when an organization was written but its
// owner membership was not.
type OnOrganizationOrphaned interface {
	Plugin
	OnOrganizationOrphaned(ctx context.Context, o *organization.Organization, cause error) error
}

// OnSiteRegistered is called after a site is created or reactivated.
type OnSiteRegistered interface {
	Plugin
	OnSiteRegistered(ctx context.Context, s *site.Site, created bool) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded is called after a purchase entry is written.
type OnCreditsAdded interface {
	Plugin
	OnCreditsAdded(ctx context.Context, e *credit.Entry, balance int64) error
}

// OnCreditsDuplicate is called when a replayed idempotency key was ignored.
type OnCreditsDuplicate interface {
	Plugin
	OnCreditsDuplicate(ctx context.Context, e *credit.Entry, balance int64) error
}

// OnCreditsConsumed is called after a consumption entry is written.
type OnCreditsConsumed interface {
	Plugin
	OnCreditsConsumed(ctx context.Context, e *credit.Entry, balance int64) error
}

// OnCreditsRefunded is called after a refund entry is written. The entry
// amount is negative.
type OnCreditsRefunded interface {
	Plugin
	OnCreditsRefunded(ctx context.Context, e *credit.Entry, balance int64) error
}

// ──────────────────────────────────────────────────
// Access and billing hooks
// ──────────────────────────────────────────────────

// OnAccessEvaluated is called with every access decision.
type OnAccessEvaluated interface {
	Plugin
	OnAccessEvaluated(ctx context.Context, d access.Decision) error
}

// OnCheckoutApplied is called after a checkout event was applied.
type OnCheckoutApplied interface {
	Plugin
	OnCheckoutApplied(ctx context.Context, ev billing.CheckoutCompleted) error
}

// OnSideEffectFailed is called when a best-effort step of an operation
// failed and was swallowed.
type OnSideEffectFailed interface {
	Plugin
	OnSideEffectFailed(ctx context.Context, op string, cause error) error
}
