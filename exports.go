package licensor

import (
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/types"
)

// Re-export common types for convenience so callers rarely need the
// subpackages for simple calls.

// Entity is re-exported from types package.
type Entity = types.Entity

// SiteInfo is re-exported from license package.
type SiteInfo = license.SiteInfo

// Owner is re-exported from license package.
type Owner = license.Owner

// Re-export constructors
var (
	NewEntity           = types.NewEntity
	OwnedByUser         = license.OwnedByUser
	OwnedByOrganization = license.OwnedByOrganization
	Unowned             = license.Unowned
)
