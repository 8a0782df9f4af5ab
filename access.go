package licensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/subscription"
)

// EvaluateAccess decides whether email may perform action. It never returns
// an error: store failures and panics become a subscription_inactive deny.
//
// Precedence, first match wins:
//  1. no identity for email: deny no_identity
//  2. active paid subscription: allow
//  3. positive credit balance: allow
//  4. no subscription or a free one: deny no_subscription
//  5. otherwise: deny subscription_inactive
//
// Access is decided per identity, across services: action is recorded on the
// decision but does not select a service, so an active paid subscription to
// any service allows the call, as does the identity's shared credit balance.
func (l *Licensor) EvaluateAccess(ctx context.Context, email, action string) (d access.Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			l.logger.ErrorContext(ctx, "access evaluation panicked", "action", action, "panic", fmt.Sprint(rec))
			d = access.Deny(access.ReasonSubscriptionInactive)
		}
		d.Action = action
		d.Email = identity.NormalizeEmail(email)
		l.plugins.EmitAccessEvaluated(ctx, d)
	}()

	d, err := l.evaluate(ctx, email)
	if err != nil {
		l.logger.ErrorContext(ctx, "access evaluation failed", "action", action, "error", err)
		return access.Deny(access.ReasonSubscriptionInactive)
	}
	return d
}

func (l *Licensor) evaluate(ctx context.Context, email string) (access.Decision, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return access.Deny(access.ReasonNoIdentity), nil
	}

	ident, err := l.store.GetIdentityByEmail(ctx, normalized)
	if errors.Is(err, ErrIdentityNotFound) {
		return access.Deny(access.ReasonNoIdentity), nil
	}
	if err != nil {
		return access.Decision{}, err
	}

	subs, err := l.store.ListSubscriptionsByIdentity(ctx, ident.ID)
	if err != nil {
		return access.Decision{}, err
	}
	sub := pickSubscription(subs)
	if sub != nil && sub.ActivePaid() {
		return access.Allow(access.ViaSubscription), nil
	}

	balance, err := l.store.CreditBalance(ctx, ident.ID)
	if err != nil {
		return access.Decision{}, err
	}
	if balance > 0 {
		d := access.Allow(access.ViaCredits)
		d.Balance = balance
		return d, nil
	}

	if sub == nil || !sub.Plan.Paid() {
		return access.Deny(access.ReasonNoSubscription), nil
	}
	return access.Deny(access.ReasonSubscriptionInactive), nil
}

// pickSubscription prefers an active paid subscription, then the newest.
func pickSubscription(subs []*subscription.Subscription) *subscription.Subscription {
	for _, s := range subs {
		if s.ActivePaid() {
			return s
		}
	}
	if len(subs) > 0 {
		return subs[0]
	}
	return nil
}
