// Package plan defines plan tiers, services and the static token limit table.
package plan

import "strings"

// Plan is a quota tier.
type Plan string

const (
	Free   Plan = "free"
	Pro    Plan = "pro"
	Agency Plan = "agency"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case Free, Pro, Agency:
		return true
	}
	return false
}

// Paid reports whether p is a paid tier.
func (p Plan) Paid() bool {
	return p == Pro || p == Agency
}

// MaxSites returns how many active sites an organization on p may hold.
func (p Plan) MaxSites() int {
	if p == Agency {
		return 10
	}
	return 1
}

// Parse normalizes s into a Plan. Unknown values are returned as-is so the
// caller can reject them with Valid.
func Parse(s string) Plan {
	return Plan(strings.ToLower(strings.TrimSpace(s)))
}

// Service is a product line with its own quota table.
type Service string

const (
	ServiceAltText Service = "alttext-ai"
	ServiceSEOMeta Service = "seo-ai-meta"
)

// DefaultService is used when a request names no service.
const DefaultService = ServiceAltText
