package identity

import (
	"strings"
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/types"
)

// Identity is the billing principal behind credit balances. It is keyed by
// normalized email and is distinct from an application user account.
type Identity struct {
	types.Entity
	ID         id.IdentityID `json:"id"`
	Email      string        `json:"email"`
	LastSeenAt time.Time     `json:"last_seen_at"`
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LocalPart returns the part of a normalized email before the "@".
func LocalPart(email string) string {
	email = NormalizeEmail(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
