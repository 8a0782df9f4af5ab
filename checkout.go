package licensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/licensor/billing"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/subscription"
	"github.com/xraph/licensor/types"
)

// CheckoutResult is what applying a checkout changed.
type CheckoutResult struct {
	Identity *identity.Identity
	License  *license.License
	Attach   *AttachResult
	Balance  int64
}

// HandleCheckout applies a completed checkout: a plan purchase upgrades or
// issues the buyer's license and records the subscription, site metadata
// attaches the license, and credits are granted keyed by the session id.
// Replaying the same event changes nothing.
func (l *Licensor) HandleCheckout(ctx context.Context, ev billing.CheckoutCompleted) (*CheckoutResult, error) {
	if ev.PlanPurchase() && !ev.Plan.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, ev.Plan)
	}
	if ev.Credits < 0 {
		return nil, ErrInvalidAmount
	}

	res := &CheckoutResult{}
	ev.Service = l.service(ev.Service)

	if identity.NormalizeEmail(ev.Email) != "" {
		ident, err := l.GetOrCreateIdentity(ctx, ev.Email)
		if err != nil {
			return nil, err
		}
		res.Identity = ident
	}

	if ev.PlanPurchase() {
		lic, err := l.applyPlanPurchase(ctx, ev)
		if err != nil {
			return nil, err
		}
		res.License = lic

		if res.Identity != nil {
			if err := l.upsertSubscription(ctx, res.Identity.ID, ev); err != nil {
				return nil, err
			}
		}
	} else if ev.LicenseKey != "" {
		lic, err := l.resolveLicense(ctx, ev.LicenseKey)
		if err != nil && !errors.Is(err, ErrLicenseNotFound) {
			return nil, err
		}
		res.License = lic
	}

	if res.License != nil && !ev.Site.Empty() {
		attach, err := l.AutoAttachLicense(ctx, res.License.Key, ev.Site)
		if err != nil {
			l.sideEffectFailed(ctx, "auto-attach license", err,
				"license_id", res.License.ID.String(),
				"session_id", ev.SessionID,
			)
		} else {
			res.Attach = attach
			res.License = attach.License
		}
	}

	if ev.Credits > 0 {
		if res.Identity == nil {
			return nil, fmt.Errorf("%w: checkout %s grants credits without an email", ErrNoIdentity, ev.SessionID)
		}
		balance, err := l.AddCredits(ctx, res.Identity.ID, ev.Credits, ev.SessionID)
		if err != nil {
			return nil, err
		}
		res.Balance = balance
	} else if res.Identity != nil {
		balance, err := l.GetBalance(ctx, res.Identity.ID)
		if err != nil {
			return nil, err
		}
		res.Balance = balance
	}

	l.logger.Info("checkout applied",
		"session_id", ev.SessionID,
		"plan", string(ev.Plan),
		"credits", ev.Credits,
	)
	l.plugins.EmitCheckoutApplied(ctx, ev)

	return res, nil
}

// applyPlanPurchase finds the license the session already issued, then the
// buyer's license by key, subscription id, or user and service, and upgrades
// it. Without a match a new license is issued and tagged with the session id,
// so a redelivered session finds it again.
func (l *Licensor) applyPlanPurchase(ctx context.Context, ev billing.CheckoutCompleted) (*license.License, error) {
	refs := license.BillingRefs{
		StripeCustomerID:     ev.CustomerID,
		StripeSubscriptionID: ev.SubscriptionID,
	}

	lic, err := l.findCheckoutLicense(ctx, ev)
	if err != nil {
		return nil, err
	}
	if lic != nil {
		return l.UpgradeLicense(ctx, lic.Key, ev.Plan, refs)
	}

	owner := license.Unowned()
	if ev.UserID != "" {
		owner = license.OwnedByUser(ev.UserID)
	}

	refs.CheckoutSessionID = ev.SessionID
	lic, err = l.CreateLicense(ctx, CreateLicenseInput{
		Plan:    ev.Plan,
		Service: ev.Service,
		Owner:   owner,
		Email:   ev.Email,
		Billing: refs,
		Notify:  true,
	})
	if err != nil && ev.SessionID != "" && errors.Is(err, ErrAlreadyExists) {
		// A concurrent delivery of the same session issued it first.
		lic, err = l.store.GetLicenseByCheckoutSession(ctx, ev.SessionID)
		return lic, persistErr("get license by checkout session", err)
	}
	return lic, err
}

func (l *Licensor) findCheckoutLicense(ctx context.Context, ev billing.CheckoutCompleted) (*license.License, error) {
	lookups := []func() (*license.License, error){
		func() (*license.License, error) {
			return l.store.GetLicenseByCheckoutSession(ctx, ev.SessionID)
		},
		func() (*license.License, error) { return l.resolveLicense(ctx, ev.LicenseKey) },
		func() (*license.License, error) {
			return l.store.GetLicenseBySubscriptionID(ctx, ev.SubscriptionID)
		},
		func() (*license.License, error) {
			return l.store.GetLicenseByOwner(ctx, license.OwnedByUser(ev.UserID), ev.Service)
		},
	}

	for _, lookup := range lookups {
		lic, err := lookup()
		if err == nil {
			return lic, nil
		}
		if !errors.Is(err, ErrLicenseNotFound) {
			return nil, persistErr("find checkout license", err)
		}
	}
	return nil, nil
}

func (l *Licensor) upsertSubscription(ctx context.Context, identityID id.IdentityID, ev billing.CheckoutCompleted) error {
	var sub *subscription.Subscription

	if ev.SubscriptionID != "" {
		s, err := l.store.GetSubscriptionByProviderID(ctx, ev.SubscriptionID)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return persistErr("get subscription", err)
		}
		sub = s
	}
	if sub == nil {
		subs, err := l.store.ListSubscriptionsByIdentity(ctx, identityID)
		if err != nil {
			return persistErr("list subscriptions", err)
		}
		for _, s := range subs {
			if s.Service == ev.Service {
				sub = s
				break
			}
		}
	}

	if sub == nil {
		sub = &subscription.Subscription{
			Entity:     types.NewEntity(),
			ID:         id.NewSubscriptionID(),
			IdentityID: identityID,
			Service:    ev.Service,
		}
		applyCheckout(sub, ev)
		if err := l.store.CreateSubscription(ctx, sub); err != nil {
			return persistErr("create subscription", err)
		}
		return nil
	}

	applyCheckout(sub, ev)
	sub.Touch()
	if err := l.store.UpdateSubscription(ctx, sub); err != nil {
		return persistErr("update subscription", err)
	}
	return nil
}

func applyCheckout(sub *subscription.Subscription, ev billing.CheckoutCompleted) {
	sub.Plan = ev.Plan
	sub.Status = subscription.StatusActive
	sub.CanceledAt = nil
	if ev.CustomerID != "" {
		sub.ProviderCustomerID = ev.CustomerID
	}
	if ev.SubscriptionID != "" {
		sub.ProviderSubscriptionID = ev.SubscriptionID
	}
}

// HandleSubscriptionChanged records a provider status change. A renewal of
// an active subscription into a new period resets the license's tokens.
// Cancellation leaves the license plan alone; access evaluation stops
// honoring the subscription.
func (l *Licensor) HandleSubscriptionChanged(ctx context.Context, ev billing.SubscriptionChanged) error {
	sub, err := l.store.GetSubscriptionByProviderID(ctx, ev.SubscriptionID)
	if err != nil {
		return persistErr("get subscription", err)
	}

	status := subscription.ParseStatus(ev.Status)
	if ev.Deleted {
		status = subscription.StatusCanceled
	}

	renewed := status == subscription.StatusActive && !ev.CurrentPeriodEnd.IsZero() &&
		sub.CurrentPeriodEnd != nil && ev.CurrentPeriodEnd.After(*sub.CurrentPeriodEnd)

	sub.Status = status
	if ev.Plan.Valid() {
		sub.Plan = ev.Plan
	}
	if !ev.CurrentPeriodEnd.IsZero() {
		end := ev.CurrentPeriodEnd.UTC()
		sub.CurrentPeriodEnd = &end
	}
	if status == subscription.StatusCanceled && sub.CanceledAt == nil {
		now := l.now()
		sub.CanceledAt = &now
	}
	sub.Touch()

	if err := l.store.UpdateSubscription(ctx, sub); err != nil {
		return persistErr("update subscription", err)
	}

	l.logger.Info("subscription changed",
		"subscription_id", sub.ID.String(),
		"status", string(status),
		"renewed", renewed,
	)

	if renewed {
		lic, err := l.store.GetLicenseBySubscriptionID(ctx, ev.SubscriptionID)
		if errors.Is(err, ErrLicenseNotFound) {
			return nil
		}
		if err != nil {
			return persistErr("get license by subscription", err)
		}
		if _, err := l.ResetLicenseTokens(ctx, lic.Key); err != nil {
			return err
		}
	}

	return nil
}
