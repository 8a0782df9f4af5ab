package license_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor/id"
	"github.com/xraph/licensor/license"
	"github.com/xraph/licensor/plan"
)

func TestFromRecordSnakeAndCamelProjectTheSame(t *testing.T) {
	table := plan.DefaultTable()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snake := license.Record{
		"license_key":        "key-1",
		"plan":               "pro",
		"service":            "alttext-ai",
		"token_limit":        int64(1000),
		"tokens_remaining":   int64(640),
		"auto_attach_status": "attached",
		"user_id":            "42",
		"site_url":           "https://example.com",
		"site_hash":          "abc",
		"created_at":         created,
	}
	camel := license.Record{
		"licenseKey":       "key-1",
		"plan":             "pro",
		"service":          "alttext-ai",
		"tokenLimit":       float64(1000),
		"tokensRemaining":  json.Number("640"),
		"autoAttachStatus": "attached",
		"userId":           "42",
		"siteUrl":          "https://example.com",
		"siteHash":         "abc",
		"createdAt":        created.Format(time.RFC3339Nano),
	}

	a, err := license.FromRecord(snake, table)
	require.NoError(t, err)
	b, err := license.FromRecord(camel, table)
	require.NoError(t, err)

	assert.Equal(t, license.NewSnapshot(a, table), license.NewSnapshot(b, table))
	assert.Equal(t, int64(1000), a.TokenLimit)
	assert.Equal(t, int64(640), a.TokensRemaining)
	userID, ok := a.Owner.UserID()
	assert.True(t, ok)
	assert.Equal(t, "42", userID)
}

func TestFromRecordPrefersSpecificValue(t *testing.T) {
	r := license.Record{
		"token_limit":      int64(0),
		"tokenLimit":       int64(1000),
		"site_url":         "",
		"siteUrl":          "https://example.com",
		"tokens_remaining": nil,
		"tokensRemaining":  int64(12),
		"plan":             "pro",
	}

	l, err := license.FromRecord(r, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), l.TokenLimit)
	assert.Equal(t, int64(12), l.TokensRemaining)
	assert.Equal(t, "https://example.com", l.SiteURL)
}

func TestFromRecordDefaultsFromTable(t *testing.T) {
	l, err := license.FromRecord(license.Record{"plan": "agency", "tokens_remaining": 0}, plan.DefaultTable())
	require.NoError(t, err)

	assert.Equal(t, plan.ServiceAltText, l.Service)
	assert.Equal(t, int64(10000), l.TokenLimit)
	// An explicit zero is kept rather than reset to the limit.
	assert.Equal(t, int64(0), l.TokensRemaining)
	assert.Equal(t, license.AttachManual, l.AutoAttachStatus)

	l, err = license.FromRecord(license.Record{"plan": "free"}, plan.DefaultTable())
	require.NoError(t, err)
	assert.Equal(t, int64(50), l.TokensRemaining)
}

func TestFromRecordOwner(t *testing.T) {
	orgID := id.NewOrganizationID()

	l, err := license.FromRecord(license.Record{"organizationId": orgID.String()}, nil)
	require.NoError(t, err)
	got, ok := l.Owner.OrganizationID()
	require.True(t, ok)
	assert.Equal(t, orgID.String(), got.String())

	l, err = license.FromRecord(license.Record{"owner_kind": "user", "owner_ref": "u-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, license.OwnedByUser("u-1"), l.Owner)

	_, err = license.FromRecord(license.Record{"user_id": "u-1", "organization_id": orgID.String()}, nil)
	assert.ErrorIs(t, err, license.ErrAmbiguousOwner)
}

func TestFromRecordRejectsBadNumbers(t *testing.T) {
	_, err := license.FromRecord(license.Record{"token_limit": "lots"}, nil)
	assert.Error(t, err)
}
