package license

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/plan"
)

// ErrAmbiguousOwner is returned when a raw record names both a user and an
// organization owner.
var ErrAmbiguousOwner = errors.New("license: record has both user and organization owner")

// Record is a raw license row as returned by a store. Depending on schema
// age its keys may be snake_case or camelCase, sometimes both at once.
type Record map[string]any

// field lists the accepted spellings of each logical column, canonical first.
var field = map[string][]string{
	"id":                     {"id", "_id"},
	"license_key":            {"license_key", "licenseKey", "key"},
	"plan":                   {"plan"},
	"service":                {"service"},
	"token_limit":            {"token_limit", "tokenLimit"},
	"tokens_remaining":       {"tokens_remaining", "tokensRemaining"},
	"auto_attach_status":     {"auto_attach_status", "autoAttachStatus"},
	"owner_kind":             {"owner_kind", "ownerKind"},
	"owner_ref":              {"owner_ref", "ownerRef"},
	"user_id":                {"user_id", "userId"},
	"organization_id":        {"organization_id", "organizationId"},
	"email":                  {"email"},
	"site_url":               {"site_url", "siteUrl"},
	"site_hash":              {"site_hash", "siteHash"},
	"install_id":             {"install_id", "installId"},
	"stripe_customer_id":     {"stripe_customer_id", "stripeCustomerId"},
	"stripe_subscription_id": {"stripe_subscription_id", "stripeSubscriptionId"},
	"checkout_session_id":    {"checkout_session_id", "checkoutSessionId"},
	"created_at":             {"created_at", "createdAt"},
	"updated_at":             {"updated_at", "updatedAt"},
}

// lookup returns the preferred value among the spellings of name: the first
// non-null, non-zero value wins; an explicit zero is used only when no
// spelling carries anything more specific.
func (r Record) lookup(name string) (any, bool) {
	var fallback any
	found := false
	for _, key := range field[name] {
		v, ok := r[key]
		if !ok || v == nil {
			continue
		}
		if !isZero(v) {
			return v, true
		}
		if !found {
			fallback, found = v, true
		}
	}
	return fallback, found
}

func (r Record) str(name string) string {
	v, ok := r.lookup(name)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (r Record) int(name string) (int64, bool, error) {
	v, ok := r.lookup(name)
	if !ok {
		return 0, false, nil
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, false, fmt.Errorf("license: field %s: %w", name, err)
	}
	return n, true, nil
}

func (r Record) time(name string) time.Time {
	v, ok := r.lookup(name)
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t != nil {
			return t.UTC()
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// FromRecord maps a raw row onto the canonical License. It is the single
// place that knows about legacy column spellings.
//
// When table is non-nil a missing or non-positive token limit is derived
// from it. A missing tokens_remaining defaults to the token limit.
func FromRecord(r Record, table *plan.Table) (*License, error) {
	if r == nil {
		return nil, errors.New("license: nil record")
	}

	l := &License{
		Key:              r.str("license_key"),
		Plan:             plan.Parse(r.str("plan")),
		Service:          plan.Service(r.str("service")),
		AutoAttachStatus: AutoAttachStatus(r.str("auto_attach_status")),
		Email:            r.str("email"),
		SiteURL:          r.str("site_url"),
		SiteHash:         r.str("site_hash"),
		InstallID:        r.str("install_id"),
		Billing: BillingRefs{
			StripeCustomerID:     r.str("stripe_customer_id"),
			StripeSubscriptionID: r.str("stripe_subscription_id"),
			CheckoutSessionID:    r.str("checkout_session_id"),
		},
	}
	l.ID = id.FromString(r.str("id"))
	l.CreatedAt = r.time("created_at")
	l.UpdatedAt = r.time("updated_at")

	if l.Plan == "" {
		l.Plan = plan.Free
	}
	if l.AutoAttachStatus == "" {
		l.AutoAttachStatus = AttachManual
	}

	owner, err := ownerFromRecord(r)
	if err != nil {
		return nil, err
	}
	l.Owner = owner

	limit, hasLimit, err := r.int("token_limit")
	if err != nil {
		return nil, err
	}
	if (!hasLimit || limit <= 0) && table != nil {
		if l.Service == "" {
			l.Service = table.DefaultService()
		}
		limit, hasLimit = table.TokenLimit(l.Service, l.Plan), true
	}
	l.TokenLimit = limit

	remaining, hasRemaining, err := r.int("tokens_remaining")
	if err != nil {
		return nil, err
	}
	if !hasRemaining && hasLimit {
		remaining = limit
	}
	l.TokensRemaining = remaining

	return l, nil
}

func ownerFromRecord(r Record) (Owner, error) {
	userID := r.str("user_id")
	orgID := r.str("organization_id")
	if userID != "" && orgID != "" {
		return Owner{}, ErrAmbiguousOwner
	}

	switch {
	case userID != "":
		return OwnedByUser(userID), nil
	case orgID != "":
		return Owner{Kind: OwnerOrganization, Ref: orgID}, nil
	}

	kind := OwnerKind(r.str("owner_kind"))
	ref := r.str("owner_ref")
	switch kind {
	case OwnerUser, OwnerOrganization:
		if ref == "" {
			return Owner{}, nil
		}
		return Owner{Kind: kind, Ref: ref}, nil
	default:
		return Owner{}, nil
	}
}

func isZero(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case int:
		return t == 0
	case int32:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case json.Number:
		return t == "" || t == "0"
	case time.Time:
		return t.IsZero()
	}
	return false
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return int64(math.Round(float64(t))), nil
	case float64:
		return int64(math.Round(t)), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(t), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
