package licensor

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/types"
)

// AddCredits appends a purchase of amount credits and returns the new
// balance. A repeated idempotency key for the same identity is a no-op that
// returns the unchanged balance; the store's unique index on
// (identity, type, key) makes this hold under concurrent delivery.
func (l *Licensor) AddCredits(ctx context.Context, identityID id.IdentityID, amount int64, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.store.GetIdentity(ctx, identityID); err != nil {
		return 0, persistErr("get identity", err)
	}

	e := &credit.Entry{
		ID:             id.NewCreditEntryID(),
		IdentityID:     identityID,
		Amount:         amount,
		Type:           credit.TypePurchase,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      l.now(),
	}

	inserted, err := l.store.AppendCreditEntry(ctx, e)
	if err != nil {
		return 0, persistErr("append credit entry", err)
	}

	balance, err := l.store.CreditBalance(ctx, identityID)
	if err != nil {
		return 0, persistErr("credit balance", err)
	}

	if !inserted {
		l.logger.InfoContext(ctx, "duplicate credit purchase ignored",
			"identity_id", identityID.String(),
			"idempotency_key", idempotencyKey,
		)
		l.plugins.EmitCreditsDuplicate(ctx, e, balance)
		return balance, nil
	}

	l.logger.Info("credits added",
		"identity_id", identityID.String(),
		"amount", amount,
		"balance", balance,
	)
	l.plugins.EmitCreditsAdded(ctx, e, balance)

	return balance, nil
}

// AddCreditsByEmail resolves or creates the identity for email and adds
// credits to it.
func (l *Licensor) AddCreditsByEmail(ctx context.Context, email string, amount int64, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	ident, err := l.GetOrCreateIdentity(ctx, email)
	if err != nil {
		return 0, err
	}
	return l.AddCredits(ctx, ident.ID, amount, idempotencyKey)
}

// ConsumeCredits debits amount credits when the balance covers it and
// returns the new balance. It fails with ErrNoCredits otherwise, so a
// balance never goes negative. The idempotency key makes retries safe.
func (l *Licensor) ConsumeCredits(ctx context.Context, identityID id.IdentityID, amount int64, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	e := &credit.Entry{
		ID:             id.NewCreditEntryID(),
		IdentityID:     identityID,
		Amount:         -amount,
		Type:           credit.TypeConsumption,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      l.now(),
	}

	inserted, err := l.store.AppendCoveredCreditEntry(ctx, e)
	if err != nil {
		return 0, persistErr("append credit entry", err)
	}

	balance, err := l.store.CreditBalance(ctx, identityID)
	if err != nil {
		return 0, persistErr("credit balance", err)
	}

	if inserted {
		l.plugins.EmitCreditsConsumed(ctx, e, balance)
	}
	return balance, nil
}

// RefundCredits removes up to amount credits after a provider refund and
// returns the new balance. The debit is clamped to the current balance.
func (l *Licensor) RefundCredits(ctx context.Context, identityID id.IdentityID, amount int64, idempotencyKey string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := l.store.CreditBalance(ctx, identityID)
	if err != nil {
		return 0, persistErr("credit balance", err)
	}
	debit := min(amount, balance)
	if debit <= 0 {
		return balance, nil
	}

	e := &credit.Entry{
		ID:             id.NewCreditEntryID(),
		IdentityID:     identityID,
		Amount:         -debit,
		Type:           credit.TypeRefund,
		IdempotencyKey: idempotencyKey,
		Description:    "refund",
		CreatedAt:      l.now(),
	}

	inserted, err := l.store.AppendCoveredCreditEntry(ctx, e)
	if err != nil {
		return 0, persistErr("append credit entry", err)
	}

	balance, err = l.store.CreditBalance(ctx, identityID)
	if err != nil {
		return 0, persistErr("credit balance", err)
	}
	if inserted {
		l.logger.Info("credits refunded", "identity_id", identityID.String(), "amount", debit, "balance", balance)
		l.plugins.EmitCreditsRefunded(ctx, e, balance)
	}
	return balance, nil
}

// GetBalance returns the sum of the identity's ledger entries.
func (l *Licensor) GetBalance(ctx context.Context, identityID id.IdentityID) (int64, error) {
	balance, err := l.store.CreditBalance(ctx, identityID)
	if err != nil {
		return 0, persistErr("credit balance", err)
	}
	return balance, nil
}

// GetBalanceByEmail returns the balance for email. An unknown email has a
// zero balance and no identity is created for it.
func (l *Licensor) GetBalanceByEmail(ctx context.Context, email string) (int64, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return 0, ErrInvalidEmail
	}

	ident, err := l.store.GetIdentityByEmail(ctx, normalized)
	if errors.Is(err, ErrIdentityNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("get identity by email", err)
	}
	return l.GetBalance(ctx, ident.ID)
}

// GetOrCreateIdentity returns the identity for email, creating it on first
// use. A concurrent create of the same email resolves to the stored row.
func (l *Licensor) GetOrCreateIdentity(ctx context.Context, email string) (*identity.Identity, error) {
	normalized := identity.NormalizeEmail(email)
	if normalized == "" {
		return nil, ErrInvalidEmail
	}

	now := l.now()

	ident, err := l.store.GetIdentityByEmail(ctx, normalized)
	if err == nil {
		if touchErr := l.store.TouchIdentity(ctx, ident.ID, now); touchErr != nil {
			l.logger.WarnContext(ctx, "identity last seen not updated", "identity_id", ident.ID.String(), "error", touchErr)
		} else {
			ident.LastSeenAt = now
		}
		return ident, nil
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return nil, persistErr("get identity by email", err)
	}

	// Concurrent first use of an email in this process shares one create.
	v, err, _ := l.identityCreates.Do(normalized, func() (any, error) {
		return l.createIdentity(ctx, normalized, now)
	})
	if err != nil {
		return nil, err
	}
	created := *v.(*identity.Identity)
	return &created, nil
}

func (l *Licensor) createIdentity(ctx context.Context, email string, now time.Time) (*identity.Identity, error) {
	ident := &identity.Identity{
		Entity:     types.NewEntity(),
		ID:         id.NewIdentityID(),
		Email:      email,
		LastSeenAt: now,
	}
	err := l.store.CreateIdentity(ctx, ident)
	if errors.Is(err, ErrAlreadyExists) {
		existing, getErr := l.store.GetIdentityByEmail(ctx, email)
		if getErr != nil {
			return nil, persistErr("get identity by email", getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, persistErr("create identity", err)
	}

	l.logger.Debug("identity created", "identity_id", ident.ID.String())
	return ident, nil
}

// ListCreditEntries returns the identity's ledger entries, newest first.
func (l *Licensor) ListCreditEntries(ctx context.Context, identityID id.IdentityID, opts credit.ListOpts) ([]*credit.Entry, error) {
	entries, err := l.store.ListCreditEntries(ctx, identityID, opts)
	if err != nil {
		return nil, persistErr("list credit entries", err)
	}
	return entries, nil
}
