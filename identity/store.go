package identity

import (
	"context"
	"time"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, i *Identity) error
	Get(ctx context.Context, identityID id.IdentityID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	Touch(ctx context.Context, identityID id.IdentityID, seenAt time.Time) error
}
