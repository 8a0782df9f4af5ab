package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/subscription"
	"github.com/xraph/licensor/types"
)

// ==================== Identity models ====================

type identityModel struct {
	grove.BaseModel `grove:"table:licensor_identities"`

	ID         string    `grove:"id,pk"        bson:"_id"`
	Email      string    `grove:"email"        bson:"email"`
	LastSeenAt time.Time `grove:"last_seen_at" bson:"last_seen_at"`
	CreatedAt  time.Time `grove:"created_at"   bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"   bson:"updated_at"`
}

func toIdentityModel(i *identity.Identity) *identityModel {
	return &identityModel{
		ID:         i.ID.String(),
		Email:      i.Email,
		LastSeenAt: i.LastSeenAt,
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

func fromIdentityModel(m *identityModel) (*identity.Identity, error) {
	identityID, err := id.ParseIdentityID(m.ID)
	if err != nil {
		return nil, err
	}
	return &identity.Identity{
		Entity:     types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:         identityID,
		Email:      m.Email,
		LastSeenAt: m.LastSeenAt,
	}, nil
}

// ==================== License models ====================

type licenseModel struct {
	grove.BaseModel `grove:"table:licensor_licenses"`

	ID                   string    `grove:"id,pk"                  bson:"_id"`
	LicenseKey           string    `grove:"license_key"            bson:"license_key"`
	Plan                 string    `grove:"plan"                   bson:"plan"`
	Service              string    `grove:"service"                bson:"service"`
	TokenLimit           int64     `grove:"token_limit"            bson:"token_limit"`
	TokensRemaining      int64     `grove:"tokens_remaining"       bson:"tokens_remaining"`
	AutoAttachStatus     string    `grove:"auto_attach_status"     bson:"auto_attach_status"`
	OwnerKind            string    `grove:"owner_kind"             bson:"owner_kind"`
	OwnerRef             string    `grove:"owner_ref"              bson:"owner_ref"`
	Email                string    `grove:"email"                  bson:"email"`
	SiteURL              string    `grove:"site_url"               bson:"site_url"`
	SiteHash             string    `grove:"site_hash"              bson:"site_hash"`
	InstallID            string    `grove:"install_id"             bson:"install_id"`
	StripeCustomerID     string    `grove:"stripe_customer_id"     bson:"stripe_customer_id"`
	StripeSubscriptionID string    `grove:"stripe_subscription_id" bson:"stripe_subscription_id"`
	CheckoutSessionID    string    `grove:"checkout_session_id"    bson:"checkout_session_id"`
	CreatedAt            time.Time `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"             bson:"updated_at"`
}

func toLicenseModel(l *license.License) *licenseModel {
	return &licenseModel{
		ID:                   l.ID.String(),
		LicenseKey:           l.Key,
		Plan:                 string(l.Plan),
		Service:              string(l.Service),
		TokenLimit:           l.TokenLimit,
		TokensRemaining:      l.TokensRemaining,
		AutoAttachStatus:     string(l.AutoAttachStatus),
		OwnerKind:            string(l.Owner.Kind),
		OwnerRef:             l.Owner.Ref,
		Email:                l.Email,
		SiteURL:              l.SiteURL,
		SiteHash:             l.SiteHash,
		InstallID:            l.InstallID,
		StripeCustomerID:     l.Billing.StripeCustomerID,
		StripeSubscriptionID: l.Billing.StripeSubscriptionID,
		CheckoutSessionID:    l.Billing.CheckoutSessionID,
		CreatedAt:            l.CreatedAt,
		UpdatedAt:            l.UpdatedAt,
	}
}

// licenseFromDocument maps a raw license document onto a License. Documents
// written before the snake_case schema carry camelCase keys, so decoding
// goes through license.FromRecord rather than a typed model.
func licenseFromDocument(doc bson.M) (*license.License, error) {
	r := make(license.Record, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case bson.DateTime:
			r[k] = t.Time().UTC()
		case bson.ObjectID:
			r[k] = t.Hex()
		default:
			r[k] = v
		}
	}
	return license.FromRecord(r, nil)
}

// ==================== Organization models ====================

type organizationModel struct {
	grove.BaseModel `grove:"table:licensor_organizations"`

	ID              string    `grove:"id,pk"            bson:"_id"`
	Name            string    `grove:"name"             bson:"name"`
	Plan            string    `grove:"plan"             bson:"plan"`
	Service         string    `grove:"service"          bson:"service"`
	MaxSites        int       `grove:"max_sites"        bson:"max_sites"`
	TokensRemaining int64     `grove:"tokens_remaining" bson:"tokens_remaining"`
	LicenseKey      string    `grove:"license_key"      bson:"license_key"`
	CreatedAt       time.Time `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time `grove:"updated_at"       bson:"updated_at"`
}

func toOrganizationModel(o *organization.Organization) *organizationModel {
	return &organizationModel{
		ID:              o.ID.String(),
		Name:            o.Name,
		Plan:            string(o.Plan),
		Service:         string(o.Service),
		MaxSites:        o.MaxSites,
		TokensRemaining: o.TokensRemaining,
		LicenseKey:      o.LicenseKey,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func fromOrganizationModel(m *organizationModel) (*organization.Organization, error) {
	orgID, err := id.ParseOrganizationID(m.ID)
	if err != nil {
		return nil, err
	}
	return &organization.Organization{
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              orgID,
		Name:            m.Name,
		Plan:            plan.Plan(m.Plan),
		Service:         plan.Service(m.Service),
		MaxSites:        m.MaxSites,
		TokensRemaining: m.TokensRemaining,
		LicenseKey:      m.LicenseKey,
	}, nil
}

type memberModel struct {
	grove.BaseModel `grove:"table:licensor_members"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	OrganizationID string    `grove:"organization_id" bson:"organization_id"`
	UserID         string    `grove:"user_id"         bson:"user_id"`
	Role           string    `grove:"role"            bson:"role"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toMemberModel(m *organization.Member) *memberModel {
	return &memberModel{
		ID:             m.ID.String(),
		OrganizationID: m.OrganizationID.String(),
		UserID:         m.UserID,
		Role:           string(m.Role),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func fromMemberModel(m *memberModel) (*organization.Member, error) {
	memberID, err := id.ParseMemberID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(m.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &organization.Member{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             memberID,
		OrganizationID: orgID,
		UserID:         m.UserID,
		Role:           organization.Role(m.Role),
	}, nil
}

// ==================== Site models ====================

type siteModel struct {
	grove.BaseModel `grove:"table:licensor_sites"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	OrganizationID string    `grove:"organization_id" bson:"organization_id"`
	SiteHash       string    `grove:"site_hash"       bson:"site_hash"`
	InstallID      string    `grove:"install_id"      bson:"install_id"`
	SiteURL        string    `grove:"site_url"        bson:"site_url"`
	IsActive       bool      `grove:"is_active"       bson:"is_active"`
	FirstSeen      time.Time `grove:"first_seen"      bson:"first_seen"`
	LastSeen       time.Time `grove:"last_seen"       bson:"last_seen"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toSiteModel(s *site.Site) *siteModel {
	return &siteModel{
		ID:             s.ID.String(),
		OrganizationID: s.OrganizationID.String(),
		SiteHash:       s.SiteHash,
		InstallID:      s.InstallID,
		SiteURL:        s.SiteURL,
		IsActive:       s.IsActive,
		FirstSeen:      s.FirstSeen,
		LastSeen:       s.LastSeen,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromSiteModel(m *siteModel) (*site.Site, error) {
	siteID, err := id.ParseSiteID(m.ID)
	if err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(m.OrganizationID)
	if err != nil {
		return nil, err
	}
	return &site.Site{
		Entity:         types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:             siteID,
		OrganizationID: orgID,
		SiteHash:       m.SiteHash,
		InstallID:      m.InstallID,
		SiteURL:        m.SiteURL,
		IsActive:       m.IsActive,
		FirstSeen:      m.FirstSeen,
		LastSeen:       m.LastSeen,
	}, nil
}

// ==================== Credit models ====================

type creditEntryModel struct {
	grove.BaseModel `grove:"table:licensor_credit_entries"`

	ID             string    `grove:"id,pk"            bson:"_id"`
	IdentityID     string    `grove:"identity_id"      bson:"identity_id"`
	Seq            int64     `grove:"seq"              bson:"seq"`
	Amount         int64     `grove:"amount"           bson:"amount"`
	Type           string    `grove:"transaction_type" bson:"transaction_type"`
	IdempotencyKey string    `grove:"idempotency_key"  bson:"idempotency_key"`
	Description    string    `grove:"description"      bson:"description"`
	CreatedAt      time.Time `grove:"created_at"       bson:"created_at"`
}

func toCreditEntryModel(e *credit.Entry) *creditEntryModel {
	return &creditEntryModel{
		ID:             e.ID.String(),
		IdentityID:     e.IdentityID.String(),
		Amount:         e.Amount,
		Type:           string(e.Type),
		IdempotencyKey: e.IdempotencyKey,
		Description:    e.Description,
		CreatedAt:      e.CreatedAt,
	}
}

func fromCreditEntryModel(m *creditEntryModel) (*credit.Entry, error) {
	entryID, err := id.ParseCreditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	identityID, err := id.ParseIdentityID(m.IdentityID)
	if err != nil {
		return nil, err
	}
	return &credit.Entry{
		ID:             entryID,
		IdentityID:     identityID,
		Amount:         m.Amount,
		Type:           credit.TransactionType(m.Type),
		IdempotencyKey: m.IdempotencyKey,
		Description:    m.Description,
		CreatedAt:      m.CreatedAt,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:licensor_subscriptions"`

	ID                     string     `grove:"id,pk"                    bson:"_id"`
	IdentityID             string     `grove:"identity_id"              bson:"identity_id"`
	Service                string     `grove:"service"                  bson:"service"`
	Plan                   string     `grove:"plan"                     bson:"plan"`
	Status                 string     `grove:"status"                   bson:"status"`
	ProviderCustomerID     string     `grove:"provider_customer_id"     bson:"provider_customer_id"`
	ProviderSubscriptionID string     `grove:"provider_subscription_id" bson:"provider_subscription_id"`
	CurrentPeriodEnd       *time.Time `grove:"current_period_end"       bson:"current_period_end,omitempty"`
	CanceledAt             *time.Time `grove:"canceled_at"              bson:"canceled_at,omitempty"`
	CreatedAt              time.Time  `grove:"created_at"               bson:"created_at"`
	UpdatedAt              time.Time  `grove:"updated_at"               bson:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:                     s.ID.String(),
		IdentityID:             s.IdentityID.String(),
		Service:                string(s.Service),
		Plan:                   string(s.Plan),
		Status:                 string(s.Status),
		ProviderCustomerID:     s.ProviderCustomerID,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		CurrentPeriodEnd:       s.CurrentPeriodEnd,
		CanceledAt:             s.CanceledAt,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}
	identityID, err := id.ParseIdentityID(m.IdentityID)
	if err != nil {
		return nil, err
	}
	return &subscription.Subscription{
		Entity:                 types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                     subID,
		IdentityID:             identityID,
		Service:                plan.Service(m.Service),
		Plan:                   plan.Plan(m.Plan),
		Status:                 subscription.Status(m.Status),
		ProviderCustomerID:     m.ProviderCustomerID,
		ProviderSubscriptionID: m.ProviderSubscriptionID,
		CurrentPeriodEnd:       m.CurrentPeriodEnd,
		CanceledAt:             m.CanceledAt,
	}, nil
}
