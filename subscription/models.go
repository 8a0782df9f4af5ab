package subscription

import (
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusPaused   Status = "paused"
)

// ParseStatus maps provider status strings onto Status. Unknown values map
// to expired so they never grant access.
func ParseStatus(s string) Status {
	switch st := Status(s); st {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled, StatusExpired, StatusPaused:
		return st
	case "incomplete", "incomplete_expired", "unpaid":
		return StatusPastDue
	default:
		return StatusExpired
	}
}

type Subscription struct {
	types.Entity
	ID                     id.SubscriptionID `json:"id"`
	IdentityID             id.IdentityID     `json:"identity_id"`
	Service                plan.Service      `json:"service"`
	Plan                   plan.Plan         `json:"plan"`
	Status                 Status            `json:"status"`
	ProviderCustomerID     string            `json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID string            `json:"provider_subscription_id,omitempty"`
	CurrentPeriodEnd       *time.Time        `json:"current_period_end,omitempty"`
	CanceledAt             *time.Time        `json:"canceled_at,omitempty"`
}

// ActivePaid reports whether the subscription grants access on its own.
func (s *Subscription) ActivePaid() bool {
	return s.Status == StatusActive && s.Plan.Paid()
}
