package site

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/types"
)

// Site is a registered WordPress installation. It belongs to one
// organization for its whole lifetime.
type Site struct {
	types.Entity
	ID             id.SiteID         `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	SiteHash       string            `json:"site_hash"`
	InstallID      string            `json:"install_id,omitempty"`
	SiteURL        string            `json:"site_url,omitempty"`
	IsActive       bool              `json:"is_active"`
	FirstSeen      time.Time         `json:"first_seen"`
	LastSeen       time.Time         `json:"last_seen"`
}

// NewHash returns a generated site hash for installs that did not send one.
func NewHash() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:16])
}

type ListOpts struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}
