// Package billing defines provider-agnostic billing events consumed by the
// licensor engine. Provider adapters (see provider/stripe) decode their own
// webhook payloads into these types.
package billing

import (
	"time"

	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plan"
)

// CheckoutCompleted is a completed checkout session. It may carry a plan
// purchase, a credit top-up, or both.
type CheckoutCompleted struct {
	// SessionID is the provider's session id; it is the idempotency key for
	// credit grants.
	SessionID      string
	Email          string
	UserID         string
	Plan           plan.Plan
	Service        plan.Service
	Credits        int64
	CustomerID     string
	SubscriptionID string
	LicenseKey     string
	Site           license.SiteInfo
}

// PlanPurchase reports whether the checkout bought a plan.
func (c CheckoutCompleted) PlanPurchase() bool {
	return c.Plan != ""
}

// SubscriptionChanged is a status change of a provider subscription.
type SubscriptionChanged struct {
	SubscriptionID   string
	CustomerID       string
	Status           string
	Plan             plan.Plan
	CurrentPeriodEnd time.Time
	Deleted          bool
}
