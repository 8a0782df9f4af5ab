package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor/access"
	audithook "github.com/xraph/licensor/audit_hook"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/site"
)

type memoryRecorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
	err    error
}

func (r *memoryRecorder) Record(_ context.Context, ev *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *memoryRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Action
	}
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExtensionRecordsLicenseLifecycle(t *testing.T) {
	rec := &memoryRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(quiet()))
	ctx := context.Background()

	l := &license.License{
		ID:      id.NewLicenseID(),
		Plan:    plan.Pro,
		Service: plan.ServiceAltText,
		Owner:   license.OwnedByUser("user-1"),
	}
	org := &organization.Organization{ID: id.NewOrganizationID(), Plan: plan.Pro}
	st := &site.Site{ID: id.NewSiteID(), OrganizationID: org.ID, SiteHash: "abc"}

	require.NoError(t, ext.OnLicenseCreated(ctx, l))
	require.NoError(t, ext.OnLicenseAttached(ctx, l, st, org))
	require.NoError(t, ext.OnLicenseUpgraded(ctx, l, plan.Free))
	require.NoError(t, ext.OnSiteRegistered(ctx, st, true))
	require.NoError(t, ext.OnSiteRegistered(ctx, st, false))

	assert.Equal(t, []string{
		audithook.ActionLicenseCreated,
		audithook.ActionLicenseAttached,
		audithook.ActionLicenseUpgraded,
		audithook.ActionSiteRegistered,
		audithook.ActionSiteReactivated,
	}, rec.actions())

	created := rec.events[0]
	assert.Equal(t, audithook.ResourceLicense, created.Resource)
	assert.Equal(t, l.ID.String(), created.ResourceID)
	assert.Equal(t, "user", created.Metadata["owner_kind"])
	assert.Equal(t, "user-1", created.Metadata["owner_ref"])

	upgraded := rec.events[2]
	assert.Equal(t, "free", upgraded.Metadata["from_plan"])
	assert.Equal(t, "pro", upgraded.Metadata["to_plan"])
}

func TestExtensionAccessDecisions(t *testing.T) {
	rec := &memoryRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(quiet()))
	ctx := context.Background()

	require.NoError(t, ext.OnAccessEvaluated(ctx, access.Allow(access.ViaCredits)))
	denied := access.Deny(access.ReasonNoSubscription)
	denied.Email = "a@example.com"
	require.NoError(t, ext.OnAccessEvaluated(ctx, denied))

	require.Len(t, rec.events, 2)
	assert.Equal(t, audithook.ActionAccessGranted, rec.events[0].Action)
	assert.Equal(t, audithook.OutcomeSuccess, rec.events[0].Outcome)
	assert.Equal(t, audithook.ActionAccessDenied, rec.events[1].Action)
	assert.Equal(t, audithook.OutcomeFailure, rec.events[1].Outcome)
	assert.Equal(t, "a@example.com", rec.events[1].ResourceID)
	assert.Equal(t, "no_subscription", rec.events[1].Metadata["reason"])
}

func TestExtensionErrorsBecomeReason(t *testing.T) {
	rec := &memoryRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(quiet()))
	cause := errors.New("mailer down")

	require.NoError(t, ext.OnSideEffectFailed(context.Background(), "create_license.notify", cause))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, audithook.ActionSideEffectFailed, ev.Action)
	assert.Equal(t, audithook.OutcomePartial, ev.Outcome)
	assert.Equal(t, "mailer down", ev.Reason)
	assert.Equal(t, "mailer down", ev.Metadata["error"])
}

func TestExtensionCreditEntries(t *testing.T) {
	rec := &memoryRecorder{}
	ext := audithook.New(rec, audithook.WithLogger(quiet()))
	entry := &credit.Entry{
		IdentityID:     id.NewIdentityID(),
		Amount:         50,
		Type:           credit.TypePurchase,
		IdempotencyKey: "cs_1",
	}

	require.NoError(t, ext.OnCreditsAdded(context.Background(), entry, 50))
	require.NoError(t, ext.OnCreditsDuplicate(context.Background(), entry, 50))

	require.Len(t, rec.events, 2)
	assert.Equal(t, int64(50), rec.events[0].Metadata["balance"])
	assert.Equal(t, "cs_1", rec.events[1].Metadata["idempotency_key"])
	assert.Equal(t, audithook.SeverityWarning, rec.events[1].Severity)
}

func TestExtensionActionFilters(t *testing.T) {
	rec := &memoryRecorder{}
	ext := audithook.New(rec,
		audithook.WithLogger(quiet()),
		audithook.WithDisabledActions(audithook.ActionAccessGranted),
	)
	ctx := context.Background()

	require.NoError(t, ext.OnAccessEvaluated(ctx, access.Allow(access.ViaSubscription)))
	require.NoError(t, ext.OnAccessEvaluated(ctx, access.Deny(access.ReasonNoIdentity)))
	assert.Equal(t, []string{audithook.ActionAccessDenied}, rec.actions())

	only := &memoryRecorder{}
	ext = audithook.New(only, audithook.WithEnabledActions(audithook.ActionOrganizationOrphaned))
	require.NoError(t, ext.OnOrganizationCreated(ctx, &organization.Organization{ID: id.NewOrganizationID()}))
	require.NoError(t, ext.OnOrganizationOrphaned(ctx, &organization.Organization{ID: id.NewOrganizationID()}, errors.New("x")))
	assert.Equal(t, []string{audithook.ActionOrganizationOrphaned}, only.actions())
}

func TestExtensionRecorderFailureIsSwallowed(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("backend unavailable")}
	ext := audithook.New(rec, audithook.WithLogger(quiet()))

	err := ext.OnOrganizationCreated(context.Background(), &organization.Organization{ID: id.NewOrganizationID()})
	assert.NoError(t, err)
	assert.Len(t, rec.events, 1)
}

func TestExtensionRegistersAsPlugin(t *testing.T) {
	rec := &memoryRecorder{}
	reg := plugin.NewRegistry().WithLogger(quiet())
	require.NoError(t, reg.Register(audithook.New(rec, audithook.WithLogger(quiet()))))

	reg.EmitCreditsConsumed(context.Background(), &credit.Entry{
		IdentityID: id.NewIdentityID(),
		Amount:     -1,
		Type:       credit.TypeConsumption,
	}, 4)

	assert.Equal(t, []string{audithook.ActionCreditsConsumed}, rec.actions())
}

func TestRefundIsRecordedAsRefund(t *testing.T) {
	rec := &memoryRecorder{}
	reg := plugin.NewRegistry().WithLogger(quiet())
	require.NoError(t, reg.Register(audithook.New(rec, audithook.WithLogger(quiet()))))

	reg.EmitCreditsRefunded(context.Background(), &credit.Entry{
		IdentityID:     id.NewIdentityID(),
		Amount:         -40,
		Type:           credit.TypeRefund,
		IdempotencyKey: "re_1",
	}, 60)

	assert.Equal(t, []string{audithook.ActionCreditsRefunded}, rec.actions())
	require.Len(t, rec.events, 1)
	assert.Equal(t, int64(-40), rec.events[0].Metadata["amount"])
	assert.Equal(t, "refund", rec.events[0].Metadata["transaction_type"])
}
