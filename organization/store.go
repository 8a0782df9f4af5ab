package organization

import (
	"context"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, o *Organization) error
	Get(ctx context.Context, orgID id.OrganizationID) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	AddMember(ctx context.Context, m *Member) error
	// PrimaryMembership returns the user's membership ordered owner first.
	PrimaryMembership(ctx context.Context, userID string) (*Member, error)
}
