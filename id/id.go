// Package id defines TypeID-based identifiers for every licensor record.
//
// All records share one ID struct whose prefix names the record kind. IDs are
// K-sortable (UUIDv7-based), globally unique and URL-safe ("prefix_suffix").
// License keys are not IDs: they are opaque customer-facing tokens and live on
// the license itself.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record kind encoded in a TypeID.
type Prefix string

// Prefix constants for all licensor record kinds.
const (
	PrefixIdentity     Prefix = "idt"  // Billing principal
	PrefixLicense      Prefix = "lic"  // License
	PrefixOrganization Prefix = "org"  // Organization
	PrefixMember       Prefix = "mem"  // Organization membership
	PrefixSite         Prefix = "site" // Registered WordPress site
	PrefixCreditEntry  Prefix = "cre"  // Credit ledger entry
	PrefixSubscription Prefix = "sub"  // Plan subscription
)

// ID is the primary identifier type for all licensor records.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "lic_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and checks its prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// FromString parses s when it is non-empty and returns Nil otherwise.
// Stores use it for optional foreign-key columns.
func FromString(s string) ID {
	if s == "" {
		return Nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return Nil
	}
	return parsed
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// IdentityID identifies a billing principal (prefix: "idt").
type IdentityID = ID

// LicenseID identifies a license (prefix: "lic").
type LicenseID = ID

// OrganizationID identifies an organization (prefix: "org").
type OrganizationID = ID

// MemberID identifies an organization membership (prefix: "mem").
type MemberID = ID

// SiteID identifies a site (prefix: "site").
type SiteID = ID

// CreditEntryID identifies a credit ledger entry (prefix: "cre").
type CreditEntryID = ID

// SubscriptionID identifies a subscription (prefix: "sub").
type SubscriptionID = ID

// ──────────────────────────────────────────────────
// Convenience constructors
// ──────────────────────────────────────────────────

func NewIdentityID() ID     { return New(PrefixIdentity) }
func NewLicenseID() ID      { return New(PrefixLicense) }
func NewOrganizationID() ID { return New(PrefixOrganization) }
func NewMemberID() ID       { return New(PrefixMember) }
func NewSiteID() ID         { return New(PrefixSite) }
func NewCreditEntryID() ID  { return New(PrefixCreditEntry) }
func NewSubscriptionID() ID { return New(PrefixSubscription) }

// ──────────────────────────────────────────────────
// Convenience parsers
// ──────────────────────────────────────────────────

// ParseIdentityID parses a string and validates the "idt" prefix.
func ParseIdentityID(s string) (ID, error) { return ParseWithPrefix(s, PrefixIdentity) }

// ParseLicenseID parses a string and validates the "lic" prefix.
func ParseLicenseID(s string) (ID, error) { return ParseWithPrefix(s, PrefixLicense) }

// ParseOrganizationID parses a string and validates the "org" prefix.
func ParseOrganizationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixOrganization) }

// ParseMemberID parses a string and validates the "mem" prefix.
func ParseMemberID(s string) (ID, error) { return ParseWithPrefix(s, PrefixMember) }

// ParseSiteID parses a string and validates the "site" prefix.
func ParseSiteID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSite) }

// ParseCreditEntryID parses a string and validates the "cre" prefix.
func ParseCreditEntryID(s string) (ID, error) { return ParseWithPrefix(s, PrefixCreditEntry) }

// ParseSubscriptionID parses a string and validates the "sub" prefix.
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer. Nil stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
