// Package memory is an in-process store.Store for tests and development.
// Records are copied on the way in and out so callers never share state
// with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/store"
	"github.com/xraph/licensor/subscription"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	identities    map[string]*identity.Identity
	licenses      map[string]*license.License
	organizations map[string]*organization.Organization
	members       []*organization.Member
	sites         map[string]*site.Site
	entries       []*credit.Entry
	subscriptions map[string]*subscription.Subscription
}

func New() *Store {
	return &Store{
		identities:    make(map[string]*identity.Identity),
		licenses:      make(map[string]*license.License),
		organizations: make(map[string]*organization.Organization),
		sites:         make(map[string]*site.Site),
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Identity Store implementation
func (s *Store) CreateIdentity(_ context.Context, i *identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[i.ID.String()]; exists {
		return licensor.ErrAlreadyExists
	}
	for _, existing := range s.identities {
		if existing.Email == i.Email {
			return licensor.ErrAlreadyExists
		}
	}
	s.identities[i.ID.String()] = clone(i)
	return nil
}

func (s *Store) GetIdentity(_ context.Context, identityID id.IdentityID) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i, ok := s.identities[identityID.String()]; ok {
		return clone(i), nil
	}
	return nil, licensor.ErrIdentityNotFound
}

func (s *Store) GetIdentityByEmail(_ context.Context, email string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, i := range s.identities {
		if i.Email == email {
			return clone(i), nil
		}
	}
	return nil, licensor.ErrIdentityNotFound
}

func (s *Store) TouchIdentity(_ context.Context, identityID id.IdentityID, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.identities[identityID.String()]
	if !ok {
		return licensor.ErrIdentityNotFound
	}
	i.LastSeenAt = seenAt
	i.UpdatedAt = seenAt
	return nil
}

// License Store implementation
func (s *Store) CreateLicense(_ context.Context, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[l.ID.String()]; exists {
		return licensor.ErrAlreadyExists
	}
	for _, existing := range s.licenses {
		if existing.Key == l.Key {
			return licensor.ErrAlreadyExists
		}
		if sid := l.Billing.CheckoutSessionID; sid != "" && existing.Billing.CheckoutSessionID == sid {
			return licensor.ErrAlreadyExists
		}
	}
	s.licenses[l.ID.String()] = clone(l)
	return nil
}

func (s *Store) GetLicense(_ context.Context, licenseID id.LicenseID) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.licenses[licenseID.String()]; ok {
		return clone(l), nil
	}
	return nil, licensor.ErrLicenseNotFound
}

func (s *Store) GetLicenseByKey(_ context.Context, key string) (*license.License, error) {
	return s.findLicense(func(l *license.License) bool { return l.Key == key })
}

func (s *Store) GetLicenseBySubscriptionID(_ context.Context, stripeSubscriptionID string) (*license.License, error) {
	if stripeSubscriptionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(func(l *license.License) bool {
		return l.Billing.StripeSubscriptionID == stripeSubscriptionID
	})
}

func (s *Store) GetLicenseByCheckoutSession(_ context.Context, sessionID string) (*license.License, error) {
	if sessionID == "" {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(func(l *license.License) bool {
		return l.Billing.CheckoutSessionID == sessionID
	})
}

func (s *Store) GetLicenseByOwner(_ context.Context, owner license.Owner, service plan.Service) (*license.License, error) {
	if owner.IsZero() {
		return nil, licensor.ErrLicenseNotFound
	}
	return s.findLicense(func(l *license.License) bool {
		return l.Owner == owner && l.Service == service
	})
}

// findLicense returns the newest license matching fn.
func (s *Store) findLicense(fn func(*license.License) bool) (*license.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *license.License
	for _, l := range s.licenses {
		if fn(l) && (found == nil || l.CreatedAt.After(found.CreatedAt)) {
			found = l
		}
	}
	if found == nil {
		return nil, licensor.ErrLicenseNotFound
	}
	return clone(found), nil
}

func (s *Store) UpdateLicense(_ context.Context, l *license.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.licenses[l.ID.String()]; !exists {
		return licensor.ErrLicenseNotFound
	}
	s.licenses[l.ID.String()] = clone(l)
	return nil
}

// Organization Store implementation
func (s *Store) CreateOrganization(_ context.Context, o *organization.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[o.ID.String()]; exists {
		return licensor.ErrAlreadyExists
	}
	s.organizations[o.ID.String()] = clone(o)
	return nil
}

func (s *Store) GetOrganization(_ context.Context, orgID id.OrganizationID) (*organization.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.organizations[orgID.String()]; ok {
		return clone(o), nil
	}
	return nil, licensor.ErrOrganizationNotFound
}

func (s *Store) UpdateOrganization(_ context.Context, o *organization.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[o.ID.String()]; !exists {
		return licensor.ErrOrganizationNotFound
	}
	s.organizations[o.ID.String()] = clone(o)
	return nil
}

func (s *Store) AddMember(_ context.Context, m *organization.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[m.OrganizationID.String()]; !exists {
		return licensor.ErrOrganizationNotFound
	}
	for _, existing := range s.members {
		if existing.OrganizationID == m.OrganizationID && existing.UserID == m.UserID {
			return licensor.ErrAlreadyExists
		}
	}
	s.members = append(s.members, clone(m))
	return nil
}

func (s *Store) PrimaryMembership(_ context.Context, userID string) (*organization.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ms []*organization.Member
	for _, m := range s.members {
		if m.UserID == userID {
			ms = append(ms, m)
		}
	}
	if len(ms) == 0 {
		return nil, licensor.ErrMembershipNotFound
	}
	organization.SortMembers(ms)
	return clone(ms[0]), nil
}

// Site Store implementation
func (s *Store) CreateSite(_ context.Context, st *site.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sites[st.ID.String()]; exists {
		return licensor.ErrAlreadyExists
	}
	for _, existing := range s.sites {
		if existing.SiteHash == st.SiteHash {
			return licensor.ErrAlreadyExists
		}
	}
	s.sites[st.ID.String()] = clone(st)
	return nil
}

func (s *Store) GetSiteByHash(_ context.Context, siteHash string) (*site.Site, error) {
	if siteHash == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(func(st *site.Site) bool { return st.SiteHash == siteHash })
}

func (s *Store) GetSiteByInstallID(_ context.Context, installID string) (*site.Site, error) {
	if installID == "" {
		return nil, licensor.ErrSiteNotFound
	}
	return s.findSite(func(st *site.Site) bool { return st.InstallID == installID })
}

func (s *Store) findSite(fn func(*site.Site) bool) (*site.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.sites {
		if fn(st) {
			return clone(st), nil
		}
	}
	return nil, licensor.ErrSiteNotFound
}

func (s *Store) UpdateSite(_ context.Context, st *site.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sites[st.ID.String()]; !exists {
		return licensor.ErrSiteNotFound
	}
	s.sites[st.ID.String()] = clone(st)
	return nil
}

func (s *Store) CountActiveSites(_ context.Context, orgID id.OrganizationID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.sites {
		if st.OrganizationID == orgID && st.IsActive {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListSites(_ context.Context, orgID id.OrganizationID, opts site.ListOpts) ([]*site.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*site.Site, 0)
	for _, st := range s.sites {
		if st.OrganizationID == orgID && (!opts.ActiveOnly || st.IsActive) {
			result = append(result, clone(st))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FirstSeen.Before(result[j].FirstSeen) })
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Credit Store implementation
func (s *Store) AppendCreditEntry(_ context.Context, e *credit.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasEntryLocked(e) {
		return false, nil
	}
	s.entries = append(s.entries, clone(e))
	return true, nil
}

func (s *Store) AppendCoveredCreditEntry(_ context.Context, e *credit.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasEntryLocked(e) {
		return false, nil
	}
	if s.balanceLocked(e.IdentityID)+e.Amount < 0 {
		return false, licensor.ErrNoCredits
	}
	s.entries = append(s.entries, clone(e))
	return true, nil
}

func (s *Store) hasEntryLocked(e *credit.Entry) bool {
	if e.IdempotencyKey == "" {
		return false
	}
	for _, existing := range s.entries {
		if existing.IdentityID == e.IdentityID &&
			existing.Type == e.Type &&
			existing.IdempotencyKey == e.IdempotencyKey {
			return true
		}
	}
	return false
}

func (s *Store) CreditBalance(_ context.Context, identityID id.IdentityID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balanceLocked(identityID), nil
}

func (s *Store) balanceLocked(identityID id.IdentityID) int64 {
	var total int64
	for _, e := range s.entries {
		if e.IdentityID == identityID {
			total += e.Amount
		}
	}
	return total
}

func (s *Store) ListCreditEntries(_ context.Context, identityID id.IdentityID, opts credit.ListOpts) ([]*credit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*credit.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.IdentityID == identityID && (opts.Type == "" || e.Type == opts.Type) {
			result = append(result, clone(e))
		}
	}
	return paginate(result, opts.Limit, opts.Offset), nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return licensor.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = clone(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return clone(sub), nil
	}
	return nil, licensor.ErrSubscriptionNotFound
}

func (s *Store) GetSubscriptionByProviderID(_ context.Context, providerSubscriptionID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if providerSubscriptionID != "" {
		for _, sub := range s.subscriptions {
			if sub.ProviderSubscriptionID == providerSubscriptionID {
				return clone(sub), nil
			}
		}
	}
	return nil, licensor.ErrSubscriptionNotFound
}

func (s *Store) ListSubscriptionsByIdentity(_ context.Context, identityID id.IdentityID) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.IdentityID == identityID {
			result = append(result, clone(sub))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; !exists {
		return licensor.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = clone(sub)
	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
