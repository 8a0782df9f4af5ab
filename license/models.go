package license

import (
	"github.com/google/uuid"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/types"
)

// AutoAttachStatus tracks whether a license has been bound to a site.
type AutoAttachStatus string

const (
	AttachManual   AutoAttachStatus = "manual"
	AttachPending  AutoAttachStatus = "pending"
	AttachAttached AutoAttachStatus = "attached"
)

// CanAdvanceTo reports whether the status may move to next. The only
// transition is manual|pending → attached; attached is terminal.
func (s AutoAttachStatus) CanAdvanceTo(next AutoAttachStatus) bool {
	if s == next {
		return true
	}
	return next == AttachAttached && (s == AttachManual || s == AttachPending)
}

// OwnerKind discriminates Owner.
type OwnerKind string

const (
	OwnerNone         OwnerKind = ""
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// Owner is who a license belongs to: a single user, an organization, or
// nobody. One kind and one reference make "both" unrepresentable.
type Owner struct {
	Kind OwnerKind `json:"kind,omitempty"`
	Ref  string    `json:"ref,omitempty"`
}

// OwnedByUser returns an owner for an application user account.
func OwnedByUser(userID string) Owner {
	if userID == "" {
		return Owner{}
	}
	return Owner{Kind: OwnerUser, Ref: userID}
}

// OwnedByOrganization returns an owner for an organization.
func OwnedByOrganization(orgID id.OrganizationID) Owner {
	if orgID.IsNil() {
		return Owner{}
	}
	return Owner{Kind: OwnerOrganization, Ref: orgID.String()}
}

// Unowned returns the empty owner.
func Unowned() Owner { return Owner{} }

// UserID returns the owning user, if any.
func (o Owner) UserID() (string, bool) {
	if o.Kind != OwnerUser || o.Ref == "" {
		return "", false
	}
	return o.Ref, true
}

// OrganizationID returns the owning organization, if any.
func (o Owner) OrganizationID() (id.OrganizationID, bool) {
	if o.Kind != OwnerOrganization {
		return id.Nil, false
	}
	orgID := id.FromString(o.Ref)
	return orgID, !orgID.IsNil()
}

// IsZero reports whether the license has no owner.
func (o Owner) IsZero() bool { return o.Kind == OwnerNone || o.Ref == "" }

// SiteInfo is the site metadata supplied at creation or checkout time.
type SiteInfo struct {
	SiteURL   string `json:"site_url,omitempty"`
	SiteHash  string `json:"site_hash,omitempty"`
	InstallID string `json:"install_id,omitempty"`
}

// Empty reports whether no site field was supplied.
func (s SiteInfo) Empty() bool {
	return s.SiteURL == "" && s.SiteHash == "" && s.InstallID == ""
}

// BillingRefs are the payment provider references attached to a license.
type BillingRefs struct {
	StripeCustomerID     string `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `json:"stripe_subscription_id,omitempty"`
	// CheckoutSessionID is the checkout that issued the license, if any.
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
}

type License struct {
	types.Entity
	ID               id.LicenseID     `json:"id"`
	Key              string           `json:"license_key"`
	Plan             plan.Plan        `json:"plan"`
	Service          plan.Service     `json:"service"`
	TokenLimit       int64            `json:"token_limit"`
	TokensRemaining  int64            `json:"tokens_remaining"`
	AutoAttachStatus AutoAttachStatus `json:"auto_attach_status"`
	Owner            Owner            `json:"owner"`
	Email            string           `json:"email,omitempty"`
	SiteURL          string           `json:"site_url,omitempty"`
	SiteHash         string           `json:"site_hash,omitempty"`
	InstallID        string           `json:"install_id,omitempty"`
	Billing          BillingRefs      `json:"billing"`
}

// NewKey returns a fresh opaque license key.
func NewKey() string {
	return uuid.NewString()
}

// Site returns the site fields currently recorded on the license.
func (l *License) Site() SiteInfo {
	return SiteInfo{SiteURL: l.SiteURL, SiteHash: l.SiteHash, InstallID: l.InstallID}
}

// Attach records the attached site and moves the status to attached.
func (l *License) Attach(site SiteInfo) {
	if site.SiteURL != "" {
		l.SiteURL = site.SiteURL
	}
	if site.SiteHash != "" {
		l.SiteHash = site.SiteHash
	}
	if site.InstallID != "" {
		l.InstallID = site.InstallID
	}
	if l.AutoAttachStatus.CanAdvanceTo(AttachAttached) {
		l.AutoAttachStatus = AttachAttached
	}
	l.Touch()
}
