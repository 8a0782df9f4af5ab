package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/licensor/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"IdentityID", id.NewIdentityID, "idt_"},
		{"LicenseID", id.NewLicenseID, "lic_"},
		{"OrganizationID", id.NewOrganizationID, "org_"},
		{"MemberID", id.NewMemberID, "mem_"},
		{"SiteID", id.NewSiteID, "site_"},
		{"CreditEntryID", id.NewCreditEntryID, "cre_"},
		{"SubscriptionID", id.NewSubscriptionID, "sub_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"IdentityID", id.NewIdentityID, id.ParseIdentityID},
		{"LicenseID", id.NewLicenseID, id.ParseLicenseID},
		{"OrganizationID", id.NewOrganizationID, id.ParseOrganizationID},
		{"SiteID", id.NewSiteID, id.ParseSiteID},
		{"CreditEntryID", id.NewCreditEntryID, id.ParseCreditEntryID},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseLicenseID rejects org_", id.NewOrganizationID().String(), id.ParseLicenseID},
		{"ParseOrganizationID rejects site_", id.NewSiteID().String(), id.ParseOrganizationID},
		{"ParseSiteID rejects lic_", id.NewLicenseID().String(), id.ParseSiteID},
		{"ParseIdentityID rejects sub_", id.NewSubscriptionID().String(), id.ParseIdentityID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestFromString(t *testing.T) {
	if !id.FromString("").IsNil() {
		t.Error("expected nil for empty input")
	}
	if !id.FromString("not-an-id").IsNil() {
		t.Error("expected nil for malformed input")
	}
	lic := id.NewLicenseID()
	if got := id.FromString(lic.String()); got.String() != lic.String() {
		t.Errorf("mismatch: %q != %q", got.String(), lic.String())
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewSiteID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan([]byte{}); err != nil {
		t.Fatalf("Scan(empty) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of empty bytes")
	}
}
