// Package audithook bridges licensor lifecycle events to an audit trail
// backend.
//
// Every licensor hook becomes one AuditEvent handed to a Recorder. Wrap any
// sink (Chronicle, a log, a table) in a RecorderFunc.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/organization"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/plugin"
	"github.com/xraph/licensor/site"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnLicenseCreated       = (*Extension)(nil)
	_ plugin.OnLicenseAttached      = (*Extension)(nil)
	_ plugin.OnLicenseUpgraded      = (*Extension)(nil)
	_ plugin.OnOrganizationCreated  = (*Extension)(nil)
	_ plugin.OnOrganizationOrphaned = (*Extension)(nil)
	_ plugin.OnSiteRegistered       = (*Extension)(nil)
	_ plugin.OnCreditsAdded         = (*Extension)(nil)
	_ plugin.OnCreditsDuplicate     = (*Extension)(nil)
	_ plugin.OnCreditsConsumed      = (*Extension)(nil)
	_ plugin.OnCreditsRefunded      = (*Extension)(nil)
	_ plugin.OnAccessEvaluated      = (*Extension)(nil)
	_ plugin.OnCheckoutApplied      = (*Extension)(nil)
	_ plugin.OnSideEffectFailed     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// Callers inject the concrete audit sink at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges licensor lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// License lifecycle hooks
// ──────────────────────────────────────────────────

// OnLicenseCreated implements plugin.OnLicenseCreated.
func (e *Extension) OnLicenseCreated(ctx context.Context, l *license.License) error {
	return e.record(ctx, ActionLicenseCreated, SeverityInfo, OutcomeSuccess,
		ResourceLicense, l.ID.String(), CategoryLicensing, nil,
		"plan", string(l.Plan),
		"service", string(l.Service),
		"owner_kind", string(l.Owner.Kind),
		"owner_ref", l.Owner.Ref,
	)
}

// OnLicenseAttached implements plugin.OnLicenseAttached.
func (e *Extension) OnLicenseAttached(ctx context.Context, l *license.License, s *site.Site, o *organization.Organization) error {
	return e.record(ctx, ActionLicenseAttached, SeverityInfo, OutcomeSuccess,
		ResourceLicense, l.ID.String(), CategoryLicensing, nil,
		"site_hash", s.SiteHash,
		"organization_id", o.ID.String(),
		"auto_attach_status", string(l.AutoAttachStatus),
	)
}

// OnLicenseUpgraded implements plugin.OnLicenseUpgraded.
func (e *Extension) OnLicenseUpgraded(ctx context.Context, l *license.License, from plan.Plan) error {
	return e.record(ctx, ActionLicenseUpgraded, SeverityInfo, OutcomeSuccess,
		ResourceLicense, l.ID.String(), CategoryLicensing, nil,
		"from_plan", string(from),
		"to_plan", string(l.Plan),
		"token_limit", l.TokenLimit,
	)
}

// ──────────────────────────────────────────────────
// Organization and site hooks
// ──────────────────────────────────────────────────

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (e *Extension) OnOrganizationCreated(ctx context.Context, o *organization.Organization) error {
	return e.record(ctx, ActionOrganizationCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrganization, o.ID.String(), CategoryOrganization, nil,
		"plan", string(o.Plan),
		"max_sites", o.MaxSites,
	)
}

// OnOrganizationOrphaned implements plugin.OnOrganizationOrphaned.
func (e *Extension) OnOrganizationOrphaned(ctx context.Context, o *organization.Organization, cause error) error {
	return e.record(ctx, ActionOrganizationOrphaned, SeverityError, OutcomePartial,
		ResourceOrganization, o.ID.String(), CategoryOrganization, cause,
		"name", o.Name,
	)
}

// OnSiteRegistered implements plugin.OnSiteRegistered.
func (e *Extension) OnSiteRegistered(ctx context.Context, s *site.Site, created bool) error {
	action := ActionSiteReactivated
	if created {
		action = ActionSiteRegistered
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceSite, s.ID.String(), CategoryOrganization, nil,
		"organization_id", s.OrganizationID.String(),
		"site_hash", s.SiteHash,
	)
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsAdded implements plugin.OnCreditsAdded.
func (e *Extension) OnCreditsAdded(ctx context.Context, entry *credit.Entry, balance int64) error {
	return e.recordEntry(ctx, ActionCreditsAdded, SeverityInfo, entry, balance)
}

// OnCreditsDuplicate implements plugin.OnCreditsDuplicate.
func (e *Extension) OnCreditsDuplicate(ctx context.Context, entry *credit.Entry, balance int64) error {
	return e.recordEntry(ctx, ActionCreditsDuplicate, SeverityWarning, entry, balance)
}

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (e *Extension) OnCreditsConsumed(ctx context.Context, entry *credit.Entry, balance int64) error {
	return e.recordEntry(ctx, ActionCreditsConsumed, SeverityInfo, entry, balance)
}

// OnCreditsRefunded implements plugin.OnCreditsRefunded.
func (e *Extension) OnCreditsRefunded(ctx context.Context, entry *credit.Entry, balance int64) error {
	return e.recordEntry(ctx, ActionCreditsRefunded, SeverityWarning, entry, balance)
}

func (e *Extension) recordEntry(ctx context.Context, action, severity string, entry *credit.Entry, balance int64) error {
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceCredits, entry.IdentityID.String(), CategoryCredits, nil,
		"amount", entry.Amount,
		"transaction_type", string(entry.Type),
		"idempotency_key", entry.IdempotencyKey,
		"balance", balance,
	)
}

// ──────────────────────────────────────────────────
// Access and billing hooks
// ──────────────────────────────────────────────────

// OnAccessEvaluated implements plugin.OnAccessEvaluated.
func (e *Extension) OnAccessEvaluated(ctx context.Context, d access.Decision) error {
	if d.Allowed {
		return e.record(ctx, ActionAccessGranted, SeverityInfo, OutcomeSuccess,
			ResourceAccess, d.Email, CategoryAccess, nil,
			"via", string(d.Via),
			"action", d.Action,
		)
	}
	return e.record(ctx, ActionAccessDenied, SeverityWarning, OutcomeFailure,
		ResourceAccess, d.Email, CategoryAccess, nil,
		"reason", string(d.Reason),
		"action", d.Action,
		"balance", d.Balance,
	)
}

// OnCheckoutApplied implements plugin.OnCheckoutApplied.
func (e *Extension) OnCheckoutApplied(ctx context.Context, ev billing.CheckoutCompleted) error {
	return e.record(ctx, ActionCheckoutApplied, SeverityInfo, OutcomeSuccess,
		ResourceCheckout, ev.SessionID, CategoryPayment, nil,
		"plan", string(ev.Plan),
		"credits", ev.Credits,
		"subscription_id", ev.SubscriptionID,
	)
}

// OnSideEffectFailed implements plugin.OnSideEffectFailed.
func (e *Extension) OnSideEffectFailed(ctx context.Context, op string, cause error) error {
	return e.record(ctx, ActionSideEffectFailed, SeverityWarning, OutcomePartial,
		ResourceOperation, op, CategoryIntegration, cause,
		"operation", op,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
