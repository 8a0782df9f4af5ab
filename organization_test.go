package licensor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/store"
)

// failingMembers rejects every membership write.
type failingMembers struct {
	store.Store
}

func (failingMembers) AddMember(context.Context, *organization.Member) error {
	return errors.New("connection reset")
}

// orphanWatcher records orphaned organizations.
type orphanWatcher struct {
	mu      sync.Mutex
	orphans []id.OrganizationID
}

func (*orphanWatcher) Name() string { return "orphan-watcher" }

func (w *orphanWatcher) OnOrganizationOrphaned(_ context.Context, o *organization.Organization, _ error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orphans = append(w.orphans, o.ID)
	return nil
}

// countBarrier holds every CountActiveSites caller until n callers have
// read the count.
type countBarrier struct {
	store.Store
	wg *sync.WaitGroup
}

func (b countBarrier) CountActiveSites(ctx context.Context, orgID id.OrganizationID) (int, error) {
	n, err := b.Store.CountActiveSites(ctx, orgID)
	b.wg.Done()
	b.wg.Wait()
	return n, err
}

// countingOrgs counts organization inserts.
type countingOrgs struct {
	store.Store
	mu      sync.Mutex
	creates int
}

func (c *countingOrgs) CreateOrganization(ctx context.Context, o *organization.Organization) error {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.Store.CreateOrganization(ctx, o)
}

func TestGetOrCreateUserOrganizationConcurrent(t *testing.T) {
	ctx := context.Background()
	var counter *countingOrgs
	f := newFixture(t, func(s store.Store) store.Store {
		counter = &countingOrgs{Store: s}
		return counter
	})

	const n = 16
	ids := make([]id.OrganizationID, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orgID, err := f.l.GetOrCreateUserOrganization(ctx, "user-race", nil)
			if assert.NoError(t, err) {
				ids[i] = orgID
			}
		}()
	}
	wg.Wait()

	for _, orgID := range ids {
		assert.Equal(t, ids[0], orgID)
	}
	counter.mu.Lock()
	defer counter.mu.Unlock()
	assert.Equal(t, 1, counter.creates)
}

func TestGetOrCreateUserOrganization(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	lic := &license.License{Key: "k1", Plan: plan.Agency, Service: plan.ServiceAltText, Email: "jane@example.com"}
	orgID, err := f.l.GetOrCreateUserOrganization(ctx, "user-1", lic)
	require.NoError(t, err)

	again, err := f.l.GetOrCreateUserOrganization(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, orgID, again)

	org, err := f.store.GetOrganization(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "jane's Organization", org.Name)
	assert.Equal(t, plan.Agency, org.Plan)
	assert.Equal(t, 10, org.MaxSites)
	assert.Equal(t, int64(10000), org.TokensRemaining)
	assert.Equal(t, "k1", org.LicenseKey)

	m, err := f.store.PrimaryMembership(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, organization.RoleOwner, m.Role)

	fallback, err := f.l.GetOrCreateUserOrganization(ctx, "user-2", nil)
	require.NoError(t, err)
	org2, err := f.store.GetOrganization(ctx, fallback)
	require.NoError(t, err)
	assert.Equal(t, "user-user-2", org2.Name)
	assert.Equal(t, plan.Free, org2.Plan)

	_, err = f.l.GetOrCreateUserOrganization(ctx, "", nil)
	assert.ErrorIs(t, err, licensor.ErrNoOwningOrganization)
}

func TestOrphanedOrganizationIsReported(t *testing.T) {
	watcher := &orphanWatcher{}
	f := newFixture(t, func(s store.Store) store.Store { return failingMembers{s} },
		licensor.WithPlugin(watcher))

	orgID, err := f.l.GetOrCreateUserOrganization(context.Background(), "user-1", nil)
	require.Error(t, err)
	assert.True(t, licensor.IsRetryable(err))
	assert.Equal(t, id.Nil, orgID)

	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	require.Len(t, watcher.orphans, 1)

	// The organization row is left in place.
	_, err = f.store.GetOrganization(context.Background(), watcher.orphans[0])
	assert.NoError(t, err)
}

func TestSiteLimitIsSoftUnderConcurrentAttach(t *testing.T) {
	ctx := context.Background()
	wg := &sync.WaitGroup{}
	wg.Add(2)
	f := newFixture(t, func(s store.Store) store.Store { return countBarrier{Store: s, wg: wg} })

	orgID, err := f.l.GetOrCreateUserOrganization(ctx, "user-1", nil)
	require.NoError(t, err)
	lic, err := f.l.CreateLicense(ctx, licensor.CreateLicenseInput{
		Plan:  plan.Free,
		Owner: license.OwnedByOrganization(orgID),
	})
	require.NoError(t, err)

	var attach sync.WaitGroup
	errs := make([]error, 2)
	for i, hash := range []string{"race-a", "race-b"} {
		attach.Add(1)
		go func() {
			defer attach.Done()
			_, errs[i] = f.l.AutoAttachLicense(ctx, lic.Key, license.SiteInfo{SiteHash: hash})
		}()
	}
	attach.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	// Both attaches saw the free slot; the limit of one is exceeded by one.
	active, err := f.mem.CountActiveSites(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
}

func TestFindExistingSite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	orgID, err := f.l.GetOrCreateUserOrganization(ctx, "user-1", nil)
	require.NoError(t, err)
	otherID, err := f.l.GetOrCreateUserOrganization(ctx, "user-2", nil)
	require.NoError(t, err)

	st, err := f.l.FindExistingSite(ctx, "unknown", "unknown", orgID)
	require.NoError(t, err)
	assert.Nil(t, st)

	created, err := f.l.CreateOrUpdateSite(ctx, nil, orgID, license.SiteInfo{InstallID: "inst-1", SiteURL: "https://a.example"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.SiteHash)
	assert.True(t, created.IsActive)

	byInstall, err := f.l.FindExistingSite(ctx, "", "inst-1", orgID)
	require.NoError(t, err)
	require.NotNil(t, byInstall)
	assert.Equal(t, created.ID, byInstall.ID)

	_, err = f.l.FindExistingSite(ctx, created.SiteHash, "", otherID)
	assert.ErrorIs(t, err, licensor.ErrSiteOwnershipConflict)

	assert.ErrorIs(t, f.l.DeactivateSite(ctx, otherID, created.SiteHash), licensor.ErrSiteOwnershipConflict)
	require.NoError(t, f.l.DeactivateSite(ctx, orgID, created.SiteHash))

	ok, err := f.l.CanAddSite(ctx, orgID, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	active, err := f.l.ListOrganizationSites(ctx, orgID, site.ListOpts{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := f.l.ListOrganizationSites(ctx, orgID, site.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateOrUpdateSiteReactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	orgID, err := f.l.GetOrCreateUserOrganization(ctx, "user-1", nil)
	require.NoError(t, err)

	st, err := f.l.CreateOrUpdateSite(ctx, nil, orgID, license.SiteInfo{SiteHash: "h1", SiteURL: "https://old.example"})
	require.NoError(t, err)
	require.NoError(t, f.l.DeactivateSite(ctx, orgID, "h1"))

	existing, err := f.l.FindExistingSite(ctx, "h1", "", orgID)
	require.NoError(t, err)
	updated, err := f.l.CreateOrUpdateSite(ctx, existing, orgID, license.SiteInfo{SiteHash: "h1", SiteURL: "https://new.example"})
	require.NoError(t, err)

	assert.Equal(t, st.ID, updated.ID)
	assert.True(t, updated.IsActive)
	assert.Equal(t, "https://new.example", updated.SiteURL)
	assert.Equal(t, st.FirstSeen, updated.FirstSeen)

	// A create that loses to an existing row of the same org falls back to it.
	raced, err := f.l.CreateOrUpdateSite(ctx, nil, orgID, license.SiteInfo{SiteHash: "h1"})
	require.NoError(t, err)
	assert.Equal(t, st.ID, raced.ID)
}
