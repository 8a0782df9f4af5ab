package site

import (
	"context"

	"github.com/xraph/licensor/id"
)

type Store interface {
	Create(ctx context.Context, s *Site) error
	GetByHash(ctx context.Context, siteHash string) (*Site, error)
	GetByInstallID(ctx context.Context, installID string) (*Site, error)
	Update(ctx context.Context, s *Site) error
	CountActive(ctx context.Context, orgID id.OrganizationID) (int, error)
	List(ctx context.Context, orgID id.OrganizationID, opts ListOpts) ([]*Site, error)
}
