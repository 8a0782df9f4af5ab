// Package access holds the decision returned by access evaluation.
package access

// Reason explains a denial.
type Reason string

const (
	ReasonNoIdentity           Reason = "no_identity"
	ReasonNoSubscription       Reason = "no_subscription"
	ReasonSubscriptionInactive Reason = "subscription_inactive"
)

// Via names what granted an allow decision.
type Via string

const (
	ViaSubscription Via = "subscription"
	ViaCredits      Via = "credits"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Via     Via    `json:"via,omitempty"`
	Action  string `json:"action,omitempty"`
	Email   string `json:"email,omitempty"`
	Balance int64  `json:"balance"`
}

// Allow returns an allow decision granted via v.
func Allow(v Via) Decision {
	return Decision{Allowed: true, Via: v}
}

// Deny returns a deny decision with the default message for r.
func Deny(r Reason) Decision {
	return Decision{Reason: r, Message: r.Message()}
}

// Message returns the user-facing text for r.
func (r Reason) Message() string {
	switch r {
	case ReasonNoIdentity:
		return "No account found for this email. Purchase credits or a plan to continue."
	case ReasonNoSubscription:
		return "No active subscription or credits. Upgrade your plan or buy credits to continue."
	case ReasonSubscriptionInactive:
		return "Your subscription is not active and you have no credits remaining."
	default:
		return ""
	}
}
