package licensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/types"
)

// CreateLicenseInput describes a license to issue.
type CreateLicenseInput struct {
	Plan    plan.Plan
	Service plan.Service
	Owner   license.Owner
	Email   string
	Site    license.SiteInfo
	Billing license.BillingRefs
	// Notify sends the license-issued email after creation when Email is set.
	Notify bool
}

// AttachResult is the outcome of binding a license to a site.
type AttachResult struct {
	License      *license.License
	Site         *site.Site
	Organization *organization.Organization
}

// CreateLicense issues a new license.
//
// Auto-attach (when site info is given) and the license email run after the
// license is persisted. Their failures are logged and do not fail creation;
// the returned license reflects the attach when it succeeded.
func (l *Licensor) CreateLicense(ctx context.Context, in CreateLicenseInput) (*license.License, error) {
	if !in.Plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, in.Plan)
	}

	svc := l.service(in.Service)
	limit := l.plans.TokenLimit(svc, in.Plan)

	lic := &license.License{
		Entity:           types.NewEntity(),
		ID:               id.NewLicenseID(),
		Key:              license.NewKey(),
		Plan:             in.Plan,
		Service:          svc,
		TokenLimit:       limit,
		TokensRemaining:  limit,
		AutoAttachStatus: license.AttachManual,
		Owner:            in.Owner,
		Email:            identity.NormalizeEmail(in.Email),
		Billing:          in.Billing,
	}
	if !in.Site.Empty() {
		lic.AutoAttachStatus = license.AttachPending
		lic.SiteURL = in.Site.SiteURL
		lic.SiteHash = in.Site.SiteHash
		lic.InstallID = in.Site.InstallID
	}

	if err := l.store.CreateLicense(ctx, lic); err != nil {
		return nil, persistErr("create license", err)
	}

	l.logger.Info("license created",
		"license_id", lic.ID.String(),
		"plan", string(lic.Plan),
		"service", string(lic.Service),
		"owner_kind", string(lic.Owner.Kind),
	)
	l.plugins.EmitLicenseCreated(ctx, lic)

	if !in.Site.Empty() {
		res, err := l.AutoAttachLicense(ctx, lic.Key, in.Site)
		if err != nil {
			l.sideEffectFailed(ctx, "auto-attach license", err, "license_id", lic.ID.String())
		} else {
			lic = res.License
		}
	}

	if in.Notify && lic.Email != "" {
		l.SendLicenseEmail(ctx, lic.Key, lic.Email)
	}

	return lic, nil
}

// AutoAttachLicense binds the license identified by ref (key or id) to the
// site described by info, creating or reactivating the site under the
// owning organization. Repeating it for the same site reactivates the same
// site row.
func (l *Licensor) AutoAttachLicense(ctx context.Context, ref string, info license.SiteInfo) (*AttachResult, error) {
	if info.Empty() {
		return nil, ErrInvalidSiteInfo
	}

	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return nil, err
	}

	// A URL-only re-attach of the site already on the license reuses its hash.
	if info.SiteHash == "" && info.InstallID == "" && lic.SiteHash != "" && info.SiteURL == lic.SiteURL {
		info.SiteHash = lic.SiteHash
	}

	org, err := l.owningOrganization(ctx, lic)
	if err != nil {
		return nil, err
	}

	existing, err := l.FindExistingSite(ctx, info.SiteHash, info.InstallID, org.ID)
	if err != nil {
		return nil, err
	}

	ok, err := l.CanAddSite(ctx, org.ID, org, existing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSiteLimitReached
	}

	st, err := l.CreateOrUpdateSite(ctx, existing, org.ID, info)
	if err != nil {
		return nil, err
	}

	lic.Attach(license.SiteInfo{SiteURL: st.SiteURL, SiteHash: st.SiteHash, InstallID: st.InstallID})
	if err := l.store.UpdateLicense(ctx, lic); err != nil {
		return nil, persistErr("update license", err)
	}

	l.logger.Info("license attached",
		"license_id", lic.ID.String(),
		"organization_id", org.ID.String(),
		"site_id", st.ID.String(),
	)
	l.plugins.EmitLicenseAttached(ctx, lic, st, org)

	return &AttachResult{License: lic, Site: st, Organization: org}, nil
}

// owningOrganization resolves the organization a license attaches sites to.
func (l *Licensor) owningOrganization(ctx context.Context, lic *license.License) (*organization.Organization, error) {
	var orgID id.OrganizationID

	if oid, ok := lic.Owner.OrganizationID(); ok {
		orgID = oid
	} else if userID, ok := lic.Owner.UserID(); ok {
		oid, err := l.GetOrCreateUserOrganization(ctx, userID, lic)
		if err != nil {
			return nil, err
		}
		orgID = oid
	} else {
		return nil, ErrNoOwningOrganization
	}

	org, err := l.store.GetOrganization(ctx, orgID)
	if errors.Is(err, ErrOrganizationNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoOwningOrganization, orgID)
	}
	if err != nil {
		return nil, persistErr("get organization", err)
	}
	return org, nil
}

// resolveLicense looks a license up by key, then by id.
func (l *Licensor) resolveLicense(ctx context.Context, ref string) (*license.License, error) {
	if ref == "" {
		return nil, ErrLicenseNotFound
	}

	lic, err := l.store.GetLicenseByKey(ctx, ref)
	if err == nil {
		return lic, nil
	}
	if !errors.Is(err, ErrLicenseNotFound) {
		return nil, persistErr("get license by key", err)
	}

	licID, parseErr := id.ParseLicenseID(ref)
	if parseErr != nil {
		return nil, ErrLicenseNotFound
	}
	lic, err = l.store.GetLicense(ctx, licID)
	if err != nil {
		return nil, persistErr("get license", err)
	}
	return lic, nil
}

// GetLicense returns the license identified by key or id.
func (l *Licensor) GetLicense(ctx context.Context, ref string) (*license.License, error) {
	return l.resolveLicense(ctx, ref)
}

// GetLicenseSnapshot returns the read-model projection of a license.
func (l *Licensor) GetLicenseSnapshot(ctx context.Context, ref string) (*license.Snapshot, error) {
	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return nil, err
	}
	return license.NewSnapshot(lic, l.plans), nil
}

// SnapshotFromRecord projects a raw store row, whatever its field naming.
func (l *Licensor) SnapshotFromRecord(r license.Record) (*license.Snapshot, error) {
	lic, err := license.FromRecord(r, l.plans)
	if err != nil {
		return nil, ValidationError{Field: "record", Message: err.Error(), Err: err}
	}
	return license.NewSnapshot(lic, l.plans), nil
}

// SendLicenseEmail sends the license-issued notification for ref. When email
// is empty the license's own email is used. Failures are logged and reported
// in the result, never as an error.
func (l *Licensor) SendLicenseEmail(ctx context.Context, ref, email string) (res notify.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = notify.Result{Err: fmt.Errorf("licensor: notification sender panic: %v", rec)}
		}
		if !res.Success {
			err := res.Err
			if err == nil {
				err = errors.New("licensor: notification not delivered")
			}
			l.sideEffectFailed(ctx, "send license email", err, "license_ref", ref)
		}
	}()

	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return notify.Result{Err: err}
	}

	to := identity.NormalizeEmail(email)
	if to == "" {
		to = lic.Email
	}
	if to == "" {
		return notify.Result{Err: ErrInvalidEmail}
	}

	return l.sender.Send(ctx, to, notify.KindLicenseIssued, notify.LicenseData(lic))
}

// RegisterInput describes a newly registered user.
type RegisterInput struct {
	UserID  string
	Email   string
	Service plan.Service
	Site    license.SiteInfo
}

// RegisterUser issues the free license for a new user. A user who already
// holds a license for the service gets that license back unchanged.
func (l *Licensor) RegisterUser(ctx context.Context, in RegisterInput) (*license.License, error) {
	if in.UserID == "" {
		return nil, ValidationError{Field: "user_id", Message: "required"}
	}

	owner := license.OwnedByUser(in.UserID)
	svc := l.service(in.Service)

	existing, err := l.store.GetLicenseByOwner(ctx, owner, svc)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrLicenseNotFound) {
		return nil, persistErr("get license by owner", err)
	}

	return l.CreateLicense(ctx, CreateLicenseInput{
		Plan:    plan.Free,
		Service: svc,
		Owner:   owner,
		Email:   in.Email,
		Site:    in.Site,
		Notify:  true,
	})
}

// UpgradeLicense moves a license to plan p, recomputing its token limit and
// merging billing references. The owning organization's plan and site
// capacity follow. Replaying the same upgrade leaves the license unchanged.
func (l *Licensor) UpgradeLicense(ctx context.Context, ref string, p plan.Plan, refs license.BillingRefs) (*license.License, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, p)
	}

	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return nil, err
	}

	from := lic.Plan
	newPeriod := refs.StripeSubscriptionID != "" && refs.StripeSubscriptionID != lic.Billing.StripeSubscriptionID
	if from == p && !newPeriod && (refs.StripeCustomerID == "" || refs.StripeCustomerID == lic.Billing.StripeCustomerID) {
		return lic, nil
	}

	lic.Plan = p
	lic.TokenLimit = l.plans.TokenLimit(lic.Service, p)
	if from != p || newPeriod {
		lic.TokensRemaining = lic.TokenLimit
	}
	if refs.StripeCustomerID != "" {
		lic.Billing.StripeCustomerID = refs.StripeCustomerID
	}
	if refs.StripeSubscriptionID != "" {
		lic.Billing.StripeSubscriptionID = refs.StripeSubscriptionID
	}
	lic.Touch()

	if err := l.store.UpdateLicense(ctx, lic); err != nil {
		return nil, persistErr("update license", err)
	}

	if err := l.syncOrganizationPlan(ctx, lic); err != nil {
		return nil, err
	}

	if from != p {
		l.logger.Info("license plan changed",
			"license_id", lic.ID.String(),
			"from", string(from),
			"to", string(p),
		)
		l.plugins.EmitLicenseUpgraded(ctx, lic, from)
	}

	return lic, nil
}

// syncOrganizationPlan copies the license plan onto its organization, if the
// license already has one.
func (l *Licensor) syncOrganizationPlan(ctx context.Context, lic *license.License) error {
	var orgID id.OrganizationID
	if oid, ok := lic.Owner.OrganizationID(); ok {
		orgID = oid
	} else if userID, ok := lic.Owner.UserID(); ok {
		m, err := l.store.PrimaryMembership(ctx, userID)
		if errors.Is(err, ErrMembershipNotFound) {
			return nil
		}
		if err != nil {
			return persistErr("get membership", err)
		}
		orgID = m.OrganizationID
	} else {
		return nil
	}

	org, err := l.store.GetOrganization(ctx, orgID)
	if errors.Is(err, ErrOrganizationNotFound) {
		return nil
	}
	if err != nil {
		return persistErr("get organization", err)
	}

	org.ApplyPlan(lic.Plan)
	org.Service = lic.Service
	org.TokensRemaining = lic.TokensRemaining
	org.LicenseKey = lic.Key
	org.Touch()

	if err := l.store.UpdateOrganization(ctx, org); err != nil {
		return persistErr("update organization", err)
	}
	return nil
}

// ResetLicenseTokens restores a license's tokens to its plan limit at the
// start of a billing cycle.
func (l *Licensor) ResetLicenseTokens(ctx context.Context, ref string) (*license.License, error) {
	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return nil, err
	}

	lic.TokenLimit = l.plans.TokenLimit(lic.Service, lic.Plan)
	lic.TokensRemaining = lic.TokenLimit
	lic.Touch()

	if err := l.store.UpdateLicense(ctx, lic); err != nil {
		return nil, persistErr("update license", err)
	}

	l.logger.Debug("license tokens reset", "license_id", lic.ID.String(), "tokens", lic.TokensRemaining)
	return lic, nil
}

// TopUpTokens adds amount tokens to a license. This is the only path that
// may take tokens_remaining above the limit.
func (l *Licensor) TopUpTokens(ctx context.Context, ref string, amount int64) (*license.License, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	lic, err := l.resolveLicense(ctx, ref)
	if err != nil {
		return nil, err
	}

	lic.TokensRemaining += amount
	lic.Touch()

	if err := l.store.UpdateLicense(ctx, lic); err != nil {
		return nil, persistErr("update license", err)
	}
	return lic, nil
}
