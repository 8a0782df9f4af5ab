package subscription

import (
	"context"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	// ListByIdentity returns the identity's subscriptions, newest first.
	ListByIdentity(ctx context.Context, identityID id.IdentityID) ([]*Subscription, error)
	Update(ctx context.Context, s *Subscription) error
}
