package license

import (
	"time"

	"github.com/xraph/licensor/plan"
)

// Snapshot is the read-model projection of a license handed to callers.
type Snapshot struct {
	ID               string           `json:"id,omitempty"`
	LicenseKey       string           `json:"license_key"`
	Plan             plan.Plan        `json:"plan"`
	Service          plan.Service     `json:"service"`
	TokenLimit       int64            `json:"token_limit"`
	TokensRemaining  int64            `json:"tokens_remaining"`
	TokensUsed       int64            `json:"tokens_used"`
	AutoAttachStatus AutoAttachStatus `json:"auto_attach_status"`
	OwnerKind        OwnerKind        `json:"owner_kind,omitempty"`
	OwnerRef         string           `json:"owner_ref,omitempty"`
	Email            string           `json:"email,omitempty"`
	Site             SiteInfo         `json:"site"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewSnapshot projects l. A missing token limit is taken from table.
func NewSnapshot(l *License, table *plan.Table) *Snapshot {
	limit := l.TokenLimit
	if limit <= 0 && table != nil {
		limit = table.TokenLimit(l.Service, l.Plan)
	}

	used := limit - l.TokensRemaining
	if used < 0 {
		used = 0
	}

	return &Snapshot{
		ID:               l.ID.String(),
		LicenseKey:       l.Key,
		Plan:             l.Plan,
		Service:          l.Service,
		TokenLimit:       limit,
		TokensRemaining:  l.TokensRemaining,
		TokensUsed:       used,
		AutoAttachStatus: l.AutoAttachStatus,
		OwnerKind:        l.Owner.Kind,
		OwnerRef:         l.Owner.Ref,
		Email:            l.Email,
		Site:             l.Site(),
		CreatedAt:        l.CreatedAt,
		UpdatedAt:        l.UpdatedAt,
	}
}
