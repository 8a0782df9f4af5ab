package licensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/types"
)

// GetOrCreateUserOrganization returns the user's primary organization,
// creating it with an owner membership when the user has none. lic, when
// given, seeds the new organization's plan, capacity and tokens.
//
// The two writes are not transactional. If the membership write fails the
// organization is left in place, reported as orphaned, and the error is
// returned.
//
// Concurrent first calls for one user in this process share a single create.
// Across processes there is no lock: two instances can each create an owner
// organization, and each then carries its own MaxSites. This is the same
// soft limit as the site count in CanAddSite.
func (l *Licensor) GetOrCreateUserOrganization(ctx context.Context, userID string, lic *license.License) (id.OrganizationID, error) {
	if userID == "" {
		return id.Nil, ErrNoOwningOrganization
	}

	orgID, found, err := l.primaryOrganization(ctx, userID)
	if err != nil || found {
		return orgID, err
	}

	v, err, _ := l.organizationCreates.Do(userID, func() (any, error) {
		// A flight that finished just before this one already wrote the membership.
		orgID, found, err := l.primaryOrganization(ctx, userID)
		if err != nil || found {
			return orgID, err
		}
		return l.createUserOrganization(ctx, userID, lic)
	})
	if err != nil {
		return id.Nil, err
	}
	return v.(id.OrganizationID), nil
}

func (l *Licensor) primaryOrganization(ctx context.Context, userID string) (id.OrganizationID, bool, error) {
	m, err := l.store.PrimaryMembership(ctx, userID)
	if err == nil {
		return m.OrganizationID, true, nil
	}
	if !errors.Is(err, ErrMembershipNotFound) {
		return id.Nil, false, persistErr("get membership", err)
	}
	return id.Nil, false, nil
}

func (l *Licensor) createUserOrganization(ctx context.Context, userID string, lic *license.License) (id.OrganizationID, error) {
	p, svc, email, key := plan.Free, l.defaultService, "", ""
	if lic != nil {
		p, svc, email, key = lic.Plan, lic.Service, lic.Email, lic.Key
	}

	org := &organization.Organization{
		Entity:          types.NewEntity(),
		ID:              id.NewOrganizationID(),
		Name:            organization.NameFor(email, userID),
		Service:         svc,
		TokensRemaining: l.plans.TokenLimit(svc, p),
		LicenseKey:      key,
	}
	org.ApplyPlan(p)

	if err := l.store.CreateOrganization(ctx, org); err != nil {
		return id.Nil, persistErr("create organization", err)
	}

	member := &organization.Member{
		Entity:         types.NewEntity(),
		ID:             id.NewMemberID(),
		OrganizationID: org.ID,
		UserID:         userID,
		Role:           organization.RoleOwner,
	}
	if err := l.store.AddMember(ctx, member); err != nil {
		l.logger.ErrorContext(ctx, "organization orphaned: owner membership not written",
			"organization_id", org.ID.String(),
			"user_id", userID,
			"error", err,
		)
		l.plugins.EmitOrganizationOrphaned(ctx, org, err)
		return id.Nil, persistErr("add organization owner", err)
	}

	l.logger.Info("organization created",
		"organization_id", org.ID.String(),
		"plan", string(org.Plan),
		"max_sites", org.MaxSites,
	)
	l.plugins.EmitOrganizationCreated(ctx, org)

	return org.ID, nil
}

// FindExistingSite looks a site up by hash, then by install id. It returns
// nil when neither matches and ErrSiteOwnershipConflict when the match
// belongs to a different organization.
func (l *Licensor) FindExistingSite(ctx context.Context, siteHash, installID string, orgID id.OrganizationID) (*site.Site, error) {
	lookups := []struct {
		key string
		get func(context.Context, string) (*site.Site, error)
	}{
		{siteHash, l.store.GetSiteByHash},
		{installID, l.store.GetSiteByInstallID},
	}

	for _, lk := range lookups {
		if lk.key == "" {
			continue
		}
		st, err := lk.get(ctx, lk.key)
		if errors.Is(err, ErrSiteNotFound) {
			continue
		}
		if err != nil {
			return nil, persistErr("get site", err)
		}
		if st.OrganizationID != orgID {
			l.logger.WarnContext(ctx, "site ownership conflict",
				"site_id", st.ID.String(),
				"owner", st.OrganizationID.String(),
				"requested_by", orgID.String(),
			)
			return nil, fmt.Errorf("%w: site %s", ErrSiteOwnershipConflict, st.ID)
		}
		return st, nil
	}

	return nil, nil
}

// CanAddSite reports whether the organization may take on a site. A known
// site can always be reactivated; a new one needs a free slot.
//
// The count and the later write are separate statements, so two concurrent
// attaches may both see the last free slot. The limit is soft by one under
// that race.
func (l *Licensor) CanAddSite(ctx context.Context, orgID id.OrganizationID, org *organization.Organization, existing *site.Site) (bool, error) {
	if existing != nil {
		return true, nil
	}

	if org == nil {
		o, err := l.store.GetOrganization(ctx, orgID)
		if err != nil {
			return false, persistErr("get organization", err)
		}
		org = o
	}

	maxSites := org.MaxSites
	if maxSites <= 0 {
		maxSites = org.Plan.MaxSites()
	}

	active, err := l.store.CountActiveSites(ctx, orgID)
	if err != nil {
		return false, persistErr("count active sites", err)
	}

	return active < maxSites, nil
}

// CreateOrUpdateSite reactivates existing, refreshing its url and install
// id, or registers a new site under orgID.
func (l *Licensor) CreateOrUpdateSite(ctx context.Context, existing *site.Site, orgID id.OrganizationID, info license.SiteInfo) (*site.Site, error) {
	now := l.now()

	if existing != nil {
		return l.reactivateSite(ctx, existing, info)
	}

	hash := info.SiteHash
	if hash == "" {
		hash = site.NewHash()
	}

	st := &site.Site{
		Entity:         types.NewEntity(),
		ID:             id.NewSiteID(),
		OrganizationID: orgID,
		SiteHash:       hash,
		InstallID:      info.InstallID,
		SiteURL:        info.SiteURL,
		IsActive:       true,
		FirstSeen:      now,
		LastSeen:       now,
	}

	err := l.store.CreateSite(ctx, st)
	if errors.Is(err, ErrAlreadyExists) {
		// Lost a create race for the same hash: fall back to the winner.
		winner, findErr := l.FindExistingSite(ctx, hash, "", orgID)
		if findErr != nil {
			return nil, findErr
		}
		if winner != nil {
			return l.reactivateSite(ctx, winner, info)
		}
	}
	if err != nil {
		return nil, persistErr("create site", err)
	}

	l.logger.Info("site registered",
		"site_id", st.ID.String(),
		"organization_id", orgID.String(),
	)
	l.plugins.EmitSiteRegistered(ctx, st, true)

	return st, nil
}

func (l *Licensor) reactivateSite(ctx context.Context, st *site.Site, info license.SiteInfo) (*site.Site, error) {
	st.IsActive = true
	if info.SiteURL != "" {
		st.SiteURL = info.SiteURL
	}
	if info.InstallID != "" {
		st.InstallID = info.InstallID
	}
	st.LastSeen = l.now()
	st.Touch()

	if err := l.store.UpdateSite(ctx, st); err != nil {
		return nil, persistErr("update site", err)
	}

	l.plugins.EmitSiteRegistered(ctx, st, false)
	return st, nil
}

// ListOrganizationSites returns the organization's sites, oldest first.
func (l *Licensor) ListOrganizationSites(ctx context.Context, orgID id.OrganizationID, opts site.ListOpts) ([]*site.Site, error) {
	sites, err := l.store.ListSites(ctx, orgID, opts)
	if err != nil {
		return nil, persistErr("list sites", err)
	}
	return sites, nil
}

// DeactivateSite frees the slot held by a site. Only the owning
// organization may deactivate it.
func (l *Licensor) DeactivateSite(ctx context.Context, orgID id.OrganizationID, siteHash string) error {
	st, err := l.store.GetSiteByHash(ctx, siteHash)
	if err != nil {
		return persistErr("get site", err)
	}
	if st.OrganizationID != orgID {
		return ErrSiteOwnershipConflict
	}
	if !st.IsActive {
		return nil
	}

	st.IsActive = false
	st.Touch()
	if err := l.store.UpdateSite(ctx, st); err != nil {
		return persistErr("update site", err)
	}

	l.logger.Info("site deactivated", "site_id", st.ID.String(), "organization_id", orgID.String())
	return nil
}
