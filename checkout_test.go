package licensor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/notify"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/subscription"
)

func proCheckout() billing.CheckoutCompleted {
	return billing.CheckoutCompleted{
		SessionID:      "cs_pro_1",
		Email:          "owner@example.com",
		UserID:         "user-1",
		Plan:           plan.Pro,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Site:           license.SiteInfo{SiteURL: "https://shop.example"},
	}
}

func TestRegisterThenProCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	free, err := f.l.RegisterUser(ctx, licensor.RegisterInput{UserID: "user-1", Email: "owner@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), free.TokenLimit)

	res, err := f.l.HandleCheckout(ctx, proCheckout())
	require.NoError(t, err)

	assert.Equal(t, free.Key, res.License.Key)
	assert.Equal(t, plan.Pro, res.License.Plan)
	assert.Equal(t, int64(1000), res.License.TokenLimit)
	assert.Equal(t, int64(1000), res.License.TokensRemaining)
	assert.Equal(t, license.AttachAttached, res.License.AutoAttachStatus)
	assert.Equal(t, "sub_1", res.License.Billing.StripeSubscriptionID)
	require.NotNil(t, res.Attach)
	assert.Equal(t, plan.Pro, res.Attach.Organization.Plan)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseUpgraded))

	sub, err := f.store.GetSubscriptionByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, sub.Status)
	assert.Equal(t, res.Identity.ID, sub.IdentityID)

	d := f.l.EvaluateAccess(ctx, "owner@example.com", "generate")
	assert.True(t, d.Allowed)
	assert.Equal(t, access.ViaSubscription, d.Via)

	// Webhook redelivery changes nothing.
	replay, err := f.l.HandleCheckout(ctx, proCheckout())
	require.NoError(t, err)
	assert.Equal(t, res.License.Key, replay.License.Key)
	assert.Equal(t, res.Attach.Site.ID, replay.Attach.Site.ID)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseUpgraded))

	subs, err := f.store.ListSubscriptionsByIdentity(ctx, res.Identity.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestCheckoutIssuesLicenseForNewBuyer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ev := proCheckout()
	ev.Plan = plan.Agency
	ev.Site = license.SiteInfo{}

	res, err := f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, plan.Agency, res.License.Plan)
	assert.Equal(t, int64(10000), res.License.TokenLimit)
	assert.Equal(t, license.AttachManual, res.License.AutoAttachStatus)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseIssued))

	// The subscription id finds the license on the next purchase.
	ev.Plan = plan.Pro
	ev.UserID = ""
	again, err := f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, res.License.Key, again.License.Key)
	assert.Equal(t, plan.Pro, again.License.Plan)
}

func TestCreditCheckoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ev := billing.CheckoutCompleted{SessionID: "cs_credits", Email: "buyer@example.com", Credits: 100}

	res, err := f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Balance)
	assert.Nil(t, res.License)

	res, err = f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Balance)

	_, err = f.l.HandleCheckout(ctx, billing.CheckoutCompleted{SessionID: "cs_anon", Credits: 10})
	assert.ErrorIs(t, err, licensor.ErrNoIdentity)

	_, err = f.l.HandleCheckout(ctx, billing.CheckoutCompleted{SessionID: "cs_bad", Plan: "gold"})
	assert.ErrorIs(t, err, licensor.ErrInvalidPlan)

	_, err = f.l.HandleCheckout(ctx, billing.CheckoutCompleted{SessionID: "cs_neg", Credits: -1})
	assert.ErrorIs(t, err, licensor.ErrInvalidAmount)
}

func TestPlanCheckoutReplayIssuesOneLicense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	// One-time purchase: no user, subscription or license key to match on.
	ev := billing.CheckoutCompleted{SessionID: "cs_once", Email: "buyer@example.com", Plan: plan.Pro}

	first, err := f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	require.NotNil(t, first.License)
	assert.Equal(t, "cs_once", first.License.Billing.CheckoutSessionID)

	second, err := f.l.HandleCheckout(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, first.License.Key, second.License.Key)
	assert.Equal(t, first.License.TokensRemaining, second.License.TokensRemaining)
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseIssued))

	stored, err := f.store.GetLicenseByCheckoutSession(ctx, "cs_once")
	require.NoError(t, err)
	assert.Equal(t, first.License.ID, stored.ID)

	other, err := f.l.HandleCheckout(ctx, billing.CheckoutCompleted{SessionID: "cs_twice", Email: "buyer@example.com", Plan: plan.Pro})
	require.NoError(t, err)
	assert.NotEqual(t, first.License.Key, other.License.Key)
}

func TestPlanCheckoutConcurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ev := billing.CheckoutCompleted{SessionID: "cs_race", Email: "racer@example.com", Plan: plan.Agency}

	const n = 8
	keys := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.l.HandleCheckout(ctx, ev)
			if assert.NoError(t, err) {
				keys[i] = res.License.Key
			}
		}()
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
	assert.Equal(t, 1, f.mail.count(notify.KindLicenseIssued))
}

func TestHandleSubscriptionChanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.l.HandleCheckout(ctx, proCheckout())
	require.NoError(t, err)

	periodEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.l.HandleSubscriptionChanged(ctx, billing.SubscriptionChanged{
		SubscriptionID: "sub_1", Status: "active", CurrentPeriodEnd: periodEnd,
	}))

	lic, err := f.l.GetLicense(ctx, res.License.Key)
	require.NoError(t, err)
	lic.TokensRemaining = 12
	require.NoError(t, f.store.UpdateLicense(ctx, lic))

	// Renewal into the next period refills tokens.
	require.NoError(t, f.l.HandleSubscriptionChanged(ctx, billing.SubscriptionChanged{
		SubscriptionID: "sub_1", Status: "active", CurrentPeriodEnd: periodEnd.AddDate(0, 1, 0),
	}))
	lic, err = f.l.GetLicense(ctx, res.License.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), lic.TokensRemaining)

	require.NoError(t, f.l.HandleSubscriptionChanged(ctx, billing.SubscriptionChanged{
		SubscriptionID: "sub_1", Status: "active", Deleted: true,
	}))
	sub, err := f.store.GetSubscriptionByProviderID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, sub.Status)
	assert.NotNil(t, sub.CanceledAt)

	d := f.l.EvaluateAccess(ctx, "owner@example.com", "generate")
	assert.False(t, d.Allowed)
	assert.Equal(t, access.ReasonSubscriptionInactive, d.Reason)

	err = f.l.HandleSubscriptionChanged(ctx, billing.SubscriptionChanged{SubscriptionID: "sub_missing", Status: "active"})
	assert.ErrorIs(t, err, licensor.ErrSubscriptionNotFound)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.l.Start(context.Background()))
	assert.GreaterOrEqual(t, f.l.Plugins().Count(), 1)
	require.NoError(t, f.l.Stop(context.Background()))
}
