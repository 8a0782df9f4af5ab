package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/observability"
	"github.com/xraph/licensor/site"
	"github.com/xraph/licensor/store/memory"
)

func value(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	col, ok := c.(prometheus.Collector)
	require.True(t, ok, "counter is not a prometheus collector")
	return testutil.ToFloat64(col)
}

func TestMetricsExtensionCountsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()

	require.NoError(t, m.OnLicenseCreated(ctx, &license.License{}))
	require.NoError(t, m.OnSiteRegistered(ctx, &site.Site{}, true))
	require.NoError(t, m.OnSiteRegistered(ctx, &site.Site{}, false))
	require.NoError(t, m.OnSiteRegistered(ctx, &site.Site{}, false))
	require.NoError(t, m.OnAccessEvaluated(ctx, access.Allow(access.ViaCredits)))
	require.NoError(t, m.OnAccessEvaluated(ctx, access.Deny(access.ReasonNoIdentity)))
	require.NoError(t, m.OnAccessEvaluated(ctx, access.Deny(access.ReasonNoSubscription)))
	require.NoError(t, m.OnSideEffectFailed(ctx, "notify", errors.New("smtp")))

	assert.Equal(t, 1.0, value(t, m.LicenseCreated))
	assert.Equal(t, 1.0, value(t, m.SiteRegistered))
	assert.Equal(t, 2.0, value(t, m.SiteReactivated))
	assert.Equal(t, 1.0, value(t, m.AccessGranted))
	assert.Equal(t, 2.0, value(t, m.AccessDenied))
	assert.Equal(t, 1.0, value(t, m.SideEffectFailures))
}

func TestMetricsExtensionCreditAmounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	ctx := context.Background()
	identityID := id.NewIdentityID()

	require.NoError(t, m.OnCreditsAdded(ctx, &credit.Entry{IdentityID: identityID, Amount: 50}, 50))
	require.NoError(t, m.OnCreditsConsumed(ctx, &credit.Entry{IdentityID: identityID, Amount: -3}, 47))
	require.NoError(t, m.OnCreditsDuplicate(ctx, &credit.Entry{IdentityID: identityID, Amount: 50}, 47))
	require.NoError(t, m.OnCheckoutApplied(ctx, billing.CheckoutCompleted{SessionID: "cs_1", Credits: 50}))

	assert.Equal(t, 1.0, value(t, m.CreditsAdded))
	assert.Equal(t, 3.0, value(t, m.CreditsConsumed))
	assert.Equal(t, 1.0, value(t, m.CreditsDuplicate))
	assert.Equal(t, 1.0, value(t, m.CheckoutApplied))

	n, err := testutil.GatherAndCount(reg, "licensor_credits_granted", "licensor_checkout_credits")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRefundsDoNotCountAsGrants(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))
	l := licensor.New(memory.New(),
		licensor.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		licensor.WithPlugin(m),
	)
	ctx := context.Background()

	ident, err := l.GetOrCreateIdentity(ctx, "refund@example.com")
	require.NoError(t, err)
	_, err = l.AddCredits(ctx, ident.ID, 100, "cs_buy")
	require.NoError(t, err)
	balance, err := l.RefundCredits(ctx, ident.ID, 40, "re_1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)

	assert.Equal(t, 1.0, value(t, m.CreditsAdded))
	assert.Equal(t, 40.0, value(t, m.CreditsRefunded))
	assert.Equal(t, 0.0, value(t, m.CreditsConsumed))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var granted bool
	for _, mf := range mfs {
		if mf.GetName() != "licensor_credits_granted" {
			continue
		}
		granted = true
		require.Len(t, mf.GetMetric(), 1)
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(1), h.GetSampleCount())
		assert.Equal(t, 100.0, h.GetSampleSum())
	}
	assert.True(t, granted)
}

func TestPrometheusFactoryReusesCollectors(t *testing.T) {
	f := observability.NewPrometheusFactory(prometheus.NewRegistry())

	a := f.Counter("licensor.access.denied")
	b := f.Counter("licensor.access.denied")
	a.Inc()
	b.Inc()

	assert.Same(t, a, b)
	assert.Equal(t, 2.0, value(t, a))
}
