package licensor_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/credit"
	"github.com/xraph/licensor/id"
)

func TestAddCreditsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ident, err := f.l.GetOrCreateIdentity(ctx, "Buyer@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "buyer@example.com", ident.Email)

	balance, err := f.l.AddCredits(ctx, ident.ID, 100, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	balance, err = f.l.AddCredits(ctx, ident.ID, 100, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	// Entries without a key are never deduplicated.
	_, err = f.l.AddCredits(ctx, ident.ID, 5, "")
	require.NoError(t, err)
	balance, err = f.l.AddCredits(ctx, ident.ID, 5, "")
	require.NoError(t, err)
	assert.Equal(t, int64(110), balance)

	entries, err := f.l.ListCreditEntries(ctx, ident.ID, credit.ListOpts{Type: credit.TypePurchase})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestAddCreditsConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ident, err := f.l.GetOrCreateIdentity(ctx, "buyer@example.com")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.AddCredits(ctx, ident.ID, 50, "cs_same")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := f.l.GetBalance(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)
}

func TestAddCreditsValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.l.AddCredits(ctx, id.NewIdentityID(), 0, "k")
	assert.ErrorIs(t, err, licensor.ErrInvalidAmount)

	_, err = f.l.AddCredits(ctx, id.NewIdentityID(), 10, "k")
	assert.ErrorIs(t, err, licensor.ErrIdentityNotFound)

	_, err = f.l.AddCreditsByEmail(ctx, "  ", 10, "k")
	assert.ErrorIs(t, err, licensor.ErrInvalidEmail)

	balance, err := f.l.AddCreditsByEmail(ctx, "new@example.com", 10, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestConsumeCreditsNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ident, err := f.l.GetOrCreateIdentity(ctx, "user@example.com")
	require.NoError(t, err)
	_, err = f.l.AddCredits(ctx, ident.ID, 3, "cs_1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	denied := 0
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.l.ConsumeCredits(ctx, ident.ID, 1, fmt.Sprintf("gen-%d", i))
			if err != nil {
				assert.ErrorIs(t, err, licensor.ErrNoCredits)
				mu.Lock()
				denied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, denied)
	balance, err := f.l.GetBalance(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = f.l.ConsumeCredits(ctx, ident.ID, 1, "gen-after")
	assert.Equal(t, licensor.KindNoCredits, licensor.KindOf(err))
}

func TestConsumeCreditsRetryIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ident, err := f.l.GetOrCreateIdentity(ctx, "user@example.com")
	require.NoError(t, err)
	_, err = f.l.AddCredits(ctx, ident.ID, 10, "cs_1")
	require.NoError(t, err)

	balance, err := f.l.ConsumeCredits(ctx, ident.ID, 4, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)

	balance, err = f.l.ConsumeCredits(ctx, ident.ID, 4, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), balance)
}

func TestRefundCreditsClampsToBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ident, err := f.l.GetOrCreateIdentity(ctx, "user@example.com")
	require.NoError(t, err)
	_, err = f.l.AddCredits(ctx, ident.ID, 10, "cs_1")
	require.NoError(t, err)
	_, err = f.l.ConsumeCredits(ctx, ident.ID, 6, "req-1")
	require.NoError(t, err)

	balance, err := f.l.RefundCredits(ctx, ident.ID, 10, "re_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	balance, err = f.l.RefundCredits(ctx, ident.ID, 10, "re_2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	refunds, err := f.l.ListCreditEntries(ctx, ident.ID, credit.ListOpts{Type: credit.TypeRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(-4), refunds[0].Amount)
}

func TestGetBalanceByEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	balance, err := f.l.GetBalanceByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Zero(t, balance)

	_, err = f.store.GetIdentityByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, licensor.ErrIdentityNotFound)

	_, err = f.l.GetBalanceByEmail(ctx, "")
	assert.ErrorIs(t, err, licensor.ErrInvalidEmail)

	_, err = f.l.AddCreditsByEmail(ctx, "Someone@Example.com", 25, "cs_1")
	require.NoError(t, err)
	balance, err = f.l.GetBalanceByEmail(ctx, " someone@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)
}

func TestGetOrCreateIdentityConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	ids := make([]id.IdentityID, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident, err := f.l.GetOrCreateIdentity(ctx, "same@example.com")
			if assert.NoError(t, err) {
				ids[i] = ident.ID
			}
		}()
	}
	wg.Wait()

	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
}
