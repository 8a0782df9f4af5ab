package store

import (
	"context"
	"time"

	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/subscription"
)

// Store is the unified storage interface for all licensor records.
// Methods are declared explicitly rather than by embedding the per-entity
// interfaces, whose names collide.
//
// Lookups return the matching licensor not-found sentinel when nothing
// matches. Creates return licensor.ErrAlreadyExists on a unique conflict.
type Store interface {
	// Identity methods
	CreateIdentity(ctx context.Context, i *identity.Identity) error
	GetIdentity(ctx context.Context, identityID id.IdentityID) (*identity.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error)
	TouchIdentity(ctx context.Context, identityID id.IdentityID, seenAt time.Time) error

	// License methods
	CreateLicense(ctx context.Context, l *license.License) error
	GetLicense(ctx context.Context, licenseID id.LicenseID) (*license.License, error)
	GetLicenseByKey(ctx context.Context, key string) (*license.License, error)
	GetLicenseBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*license.License, error)
	GetLicenseByCheckoutSession(ctx context.Context, sessionID string) (*license.License, error)
	GetLicenseByOwner(ctx context.Context, owner license.Owner, service plan.Service) (*license.License, error)
	UpdateLicense(ctx context.Context, l *license.License) error

	// Organization methods
	CreateOrganization(ctx context.Context, o *organization.Organization) error
	GetOrganization(ctx context.Context, orgID id.OrganizationID) (*organization.Organization, error)
	UpdateOrganization(ctx context.Context, o *organization.Organization) error
	AddMember(ctx context.Context, m *organization.Member) error
	PrimaryMembership(ctx context.Context, userID string) (*organization.Member, error)

	// Site methods
	CreateSite(ctx context.Context, s *site.Site) error
	GetSiteByHash(ctx context.Context, siteHash string) (*site.Site, error)
	GetSiteByInstallID(ctx context.Context, installID string) (*site.Site, error)
	UpdateSite(ctx context.Context, s *site.Site) error
	CountActiveSites(ctx context.Context, orgID id.OrganizationID) (int, error)
	ListSites(ctx context.Context, orgID id.OrganizationID, opts site.ListOpts) ([]*site.Site, error)

	// Credit ledger methods
	AppendCreditEntry(ctx context.Context, e *credit.Entry) (bool, error)
	AppendCoveredCreditEntry(ctx context.Context, e *credit.Entry) (bool, error)
	CreditBalance(ctx context.Context, identityID id.IdentityID) (int64, error)
	ListCreditEntries(ctx context.Context, identityID id.IdentityID, opts credit.ListOpts) ([]*credit.Entry, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*subscription.Subscription, error)
	ListSubscriptionsByIdentity(ctx context.Context, identityID id.IdentityID) ([]*subscription.Subscription, error)
	UpdateSubscription(ctx context.Context, s *subscription.Subscription) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
