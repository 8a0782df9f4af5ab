package organization

import (
	"fmt"
	"sort"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/identity"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/types"
)

type Organization struct {
	types.Entity
	ID              id.OrganizationID `json:"id"`
	Name            string            `json:"name"`
	Plan            plan.Plan         `json:"plan"`
	Service         plan.Service      `json:"service"`
	MaxSites        int               `json:"max_sites"`
	TokensRemaining int64             `json:"tokens_remaining"`
	LicenseKey      string            `json:"license_key,omitempty"`
}

// ApplyPlan sets the plan and the site capacity derived from it.
func (o *Organization) ApplyPlan(p plan.Plan) {
	o.Plan = p
	o.MaxSites = p.MaxSites()
}

// NameFor derives an organization name from an email's local part, falling
// back to the user id when no email is known.
func NameFor(email, userID string) string {
	if local := identity.LocalPart(email); local != "" {
		return fmt.Sprintf("%s's Organization", local)
	}
	return fmt.Sprintf("user-%s", userID)
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Rank orders roles for primary-membership lookup; lower sorts first.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 0
	case RoleAdmin:
		return 1
	default:
		return 2
	}
}

type Member struct {
	types.Entity
	ID             id.MemberID       `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	UserID         string            `json:"user_id"`
	Role           Role              `json:"role"`
}

// SortMembers orders memberships owner first, then admin, then member,
// oldest first within a role.
func SortMembers(ms []*Member) {
	sort.SliceStable(ms, func(i, j int) bool {
		ri, rj := ms[i].Role.Rank(), ms[j].Role.Rank()
		if ri != rj {
			return ri < rj
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
