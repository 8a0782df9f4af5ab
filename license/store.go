package license

import (
	"context"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/plan"
)

type Store interface {
	Create(ctx context.Context, l *License) error
	Get(ctx context.Context, licenseID id.LicenseID) (*License, error)
	GetByKey(ctx context.Context, key string) (*License, error)
	GetBySubscriptionID(ctx context.Context, stripeSubscriptionID string) (*License, error)
	GetByCheckoutSession(ctx context.Context, sessionID string) (*License, error)
	GetByOwner(ctx context.Context, owner Owner, service plan.Service) (*License, error)
	Update(ctx context.Context, l *License) error
}
