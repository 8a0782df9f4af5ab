package licensor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
)

func TestCreateLicenseTokenLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	table := plan.DefaultTable()

	for _, svc := range []plan.Service{plan.ServiceAltText, plan.ServiceSEOMeta} {
		for _, p := range []plan.Plan{plan.Free, plan.Pro, plan.Agency} {
			t.Run(string(svc)+"/"+string(p), func(t *testing.T) {
				lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: p, Service: svc})
				require.NoError(t, err)

				want := table.TokenLimit(svc, p)
				assert.Equal(t, want, lic.TokenLimit)
				assert.Equal(t, want, lic.TokensRemaining)
				assert.Equal(t, license.AttachManual, lic.AutoAttachStatus)
				assert.NotEmpty(t, lic.Key)
			})
		}
	}
}

func TestCreateLicenseInvalidPlan(t *testing.T) {
	f := newFixture(t, nil)

	inputs := []licensor.CreateLicenseInput{
		{Plan: "invalid-plan"},
		{Plan: "invalid-plan", Service: plan.ServiceAltText, Email: "a@example.com", Notify: true},
		{Plan: "", Site: license.SiteInfo{SiteURL: "https://example.com"}, Owner: license.OwnedByUser("u")},
	}
	for _, in := range inputs {
		_, err := f.l.CreateLicense(context.Background(), in)
		assert.ErrorIs(t, err, licensor.ErrInvalidPlan)
		assert.Equal(t, licensor.KindInvalidPlan, licensor.KindOf(err))
	}
	assert.Zero(t, f.mail.count(notify.KindLicenseIssued))
}

func TestCreateLicenseUnknownPlanInServiceFallsBackToFree(t *testing.T) {
	table := plan.NewTable(map[plan.Service]plan.Limits{"tiny": {plan.Free: 5}}, "tiny")
	f := newFixture(t, nil, licensor.WithPlanTable(table))

	lic, err := f.l.CreateLicense(context.Background(), licensor.CreateLicenseInput{Plan: plan.Agency})
	require.NoError(t, err)
	assert.Equal(t, plan.Service("tiny"), lic.Service)
	assert.Equal(t, int64(5), lic.TokenLimit)
}

func TestCreateLicenseAttachesAndNotifies(t *testing.T) {
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(context.Background(), licensor.CreateLicenseInput{
		Plan:   plan.Pro,
		Owner:  license.OwnedByUser("user-1"),
		Email:  " Jane@Example.com ",
		Site:   license.SiteInfo{SiteURL: "https://jane.example", SiteHash: "hash-jane"},
		Notify: true,
	})
	require.NoError(t, err)

	assert.Equal(t, license.AttachAttached, lic.AutoAttachStatus)
	assert.Equal(t, "hash-jane", lic.SiteHash)
	assert.Equal(t, "jane@example.com", lic.Email)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseIssued))

	stored, err := f.l.GetLicense(context.Background(), lic.Key)
	require.NoError(t, err)
	assert.Equal(t, license.AttachAttached, stored.AutoAttachStatus)
}

func TestCreateLicenseSideEffectFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t, nil)
	f.mail.fail = errors.New("smtp unavailable")

	// No owner: auto-attach fails with ErrNoOwningOrganization.
	lic, err := f.l.CreateLicense(context.Background(), licensor.CreateLicenseInput{
		Plan:   plan.Free,
		Email:  "a@example.com",
		Site:   license.SiteInfo{SiteURL: "https://a.example"},
		Notify: true,
	})
	require.NoError(t, err)
	assert.Equal(t, license.AttachPending, lic.AutoAttachStatus)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseIssued))

	stored, err := f.l.GetLicense(context.Background(), lic.ID.String())
	require.NoError(t, err)
	assert.Equal(t, lic.Key, stored.Key)
}

func TestAutoAttachIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("u1")})
	require.NoError(t, err)

	info := license.SiteInfo{SiteHash: "h1", SiteURL: "https://one.example"}
	first, err := f.l.AutoAttachLicense(ctx, lic.Key, info)
	require.NoError(t, err)
	second, err := f.l.AutoAttachLicense(ctx, lic.ID.String(), info)
	require.NoError(t, err)

	assert.Equal(t, first.Site.ID, second.Site.ID)
	assert.Equal(t, license.AttachAttached, second.License.AutoAttachStatus)

	sites, err := f.l.ListOrganizationSites(ctx, first.Organization.ID, site.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, sites, 1)
}

func TestAutoAttachURLOnlyReusesLicenseSite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("u1")})
	require.NoError(t, err)

	info := license.SiteInfo{SiteURL: "https://only-url.example"}
	first, err := f.l.AutoAttachLicense(ctx, lic.Key, info)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Site.SiteHash)

	second, err := f.l.AutoAttachLicense(ctx, lic.Key, info)
	require.NoError(t, err)
	assert.Equal(t, first.Site.ID, second.Site.ID)
}

func TestAutoAttachErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.l.AutoAttachLicense(ctx, "missing", license.SiteInfo{SiteHash: "h"})
	assert.ErrorIs(t, err, licensor.ErrLicenseNotFound)

	unowned, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Free})
	require.NoError(t, err)
	_, err = f.l.AutoAttachLicense(ctx, unowned.Key, license.SiteInfo{SiteHash: "h"})
	assert.ErrorIs(t, err, licensor.ErrNoOwningOrganization)

	_, err = f.l.AutoAttachLicense(ctx, unowned.Key, license.SiteInfo{})
	assert.ErrorIs(t, err, licensor.ErrInvalidSiteInfo)

	ghost, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{
		Plan:  plan.Free,
		Owner: license.OwnedByOrganization(id.NewOrganizationID()),
	})
	require.NoError(t, err)
	_, err = f.l.AutoAttachLicense(ctx, ghost.Key, license.SiteInfo{SiteHash: "h"})
	assert.ErrorIs(t, err, licensor.ErrNoOwningOrganization)
}

func TestAutoAttachOwnershipConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	a, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("alice")})
	require.NoError(t, err)
	b, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("bob")})
	require.NoError(t, err)

	attached, err := f.l.AutoAttachLicense(ctx, a.Key, license.SiteInfo{SiteHash: "shared", InstallID: "inst-1"})
	require.NoError(t, err)

	_, err = f.l.AutoAttachLicense(ctx, b.Key, license.SiteInfo{SiteHash: "shared"})
	assert.ErrorIs(t, err, licensor.ErrSiteOwnershipConflict)
	assert.Equal(t, licensor.KindSiteOwnershipConflict, licensor.KindOf(err))

	_, err = f.l.AutoAttachLicense(ctx, b.Key, license.SiteInfo{InstallID: "inst-1"})
	assert.ErrorIs(t, err, licensor.ErrSiteOwnershipConflict)

	// The site was not reassigned.
	st, err := f.store.GetSiteByHash(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, attached.Organization.ID, st.OrganizationID)
}

func TestAutoAttachSiteLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("u1")})
	require.NoError(t, err)

	first, err := f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h1"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Organization.MaxSites)

	_, err = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h2"})
	assert.ErrorIs(t, err, licensor.ErrSiteLimitReached)
	assert.True(t, licensor.IsConflict(err))

	// An inactive known site can always come back.
	require.NoError(t, f.l.DeactivateSite(ctx, first.Organization.ID, "h1"))
	_, err = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h2"})
	require.NoError(t, err)
	_, err = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h1"})
	require.NoError(t, err)

	active, err := f.store.CountActiveSites(ctx, first.Organization.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestAgencyOrganizationHoldsTenSites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Agency, Owner: license.OwnedByUser("agency")})
	require.NoError(t, err)

	for i := range 10 {
		_, err := f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{InstallID: "install-" + string(rune('a'+i))})
		require.NoError(t, err)
	}
	_, err = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{InstallID: "install-z"})
	assert.ErrorIs(t, err, licensor.ErrSiteLimitReached)
}

func TestLicenseSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("u1")})
	require.NoError(t, err)

	snap, err := f.l.GetLicenseSnapshot(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic.Key, snap.LicenseKey)
	assert.Equal(t, int64(1000), snap.TokenLimit)
	assert.Equal(t, int64(0), snap.TokensUsed)

	_, err = f.l.GetLicenseSnapshot(ctx, "nope")
	assert.ErrorIs(t, err, licensor.ErrLicenseNotFound)
}

func TestSnapshotFromRecordNamingVariants(t *testing.T) {
	f := newFixture(t, nil)

	snake, err := f.l.SnapshotFromRecord(license.Record{
		"license_key": "k", "plan": "pro", "token_limit": 1000, "tokens_remaining": 400,
	})
	require.NoError(t, err)
	camel, err := f.l.SnapshotFromRecord(license.Record{
		"licenseKey": "k", "plan": "pro", "tokenLimit": 1000, "tokensRemaining": 400,
	})
	require.NoError(t, err)
	assert.Equal(t, snake, camel)
	assert.Equal(t, int64(600), snake.TokensUsed)

	derived, err := f.l.SnapshotFromRecord(license.Record{"licenseKey": "k", "plan": "agency"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), derived.TokenLimit)

	_, err = f.l.SnapshotFromRecord(license.Record{"user_id": "u", "organization_id": "org_x"})
	assert.True(t, licensor.IsValidation(err))
}

func TestSendLicenseEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Free, Email: "owner@example.com"})
	require.NoError(t, err)

	res := f.l.SendLicenseEmail(ctx, lic.Key, "")
	assert.True(t, res.Success)
	assert.Equal(t, "owner@example.com", f.mail.to[len(f.mail.to)-1])

	res = f.l.SendLicenseEmail(ctx, "missing", "x@example.com")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, licensor.ErrLicenseNotFound)

	f.mail.fail = errors.New("bounced")
	res = f.l.SendLicenseEmail(ctx, lic.Key, "other@example.com")
	assert.False(t, res.Success)
}

func TestRegisterUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	first, err := f.l.RegisterUser(ctx, licensor.RegisterInput{UserID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, plan.Free, first.Plan)
	assert.Equal(t, int64(50), first.TokenLimit)

	second, err := f.l.RegisterUser(ctx, licensor.RegisterInput{UserID: "u1", Email: "u1@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)

	_, err = f.l.RegisterUser(ctx, licensor.RegisterInput{})
	assert.True(t, licensor.IsValidation(err))
}

func TestUpgradeLicenseSyncsOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Pro, Owner: license.OwnedByUser("u1")})
	require.NoError(t, err)
	attached, err := f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h1"})
	require.NoError(t, err)
	assert.Equal(t, 1, attached.Organization.MaxSites)

	up, err := f.l.UpgradeLicense(ctx, lic.Key, plan.Agency, license.BillingRefs{StripeSubscriptionID: "sub_1"})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), up.TokenLimit)
	assert.Equal(t, "sub_1", up.Billing.StripeSubscriptionID)

	org, err := f.store.GetOrganization(ctx, attached.Organization.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.Agency, org.Plan)
	assert.Equal(t, 10, org.MaxSites)

	_, err = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: "h2"})
	require.NoError(t, err)

	_, err = f.l.UpgradeLicense(ctx, lic.Key, "platinum", license.BillingRefs{})
	assert.ErrorIs(t, err, licensor.ErrInvalidPlan)
}

func TestTokenResetAndTopUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{Plan: plan.Free})
	require.NoError(t, err)

	lic.TokensRemaining = 3
	require.NoError(t, f.store.UpdateLicense(ctx, lic))

	reset, err := f.l.ResetLicenseTokens(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(50), reset.TokensRemaining)

	topped, err := f.l.TopUpTokens(ctx, lic.Key, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(75), topped.TokensRemaining)
	assert.Equal(t, int64(50), topped.TokenLimit)

	_, err = f.l.TopUpTokens(ctx, lic.Key, 0)
	assert.ErrorIs(t, err, licensor.ErrInvalidAmount)
}
