package licensor_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/licensor"
	"github.com/xraph/licensor/access"
	"github.com/xraph/licensor/plan"
	"github.com/xraph/licensor/store/memory"
)

// TestDocumentationExamples runs the package documentation walkthrough.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		ctx := context.Background()
		l := licensor.New(memory.New(), licensor.WithLogger(quietLogger()))
		require.NoError(t, l.Start(ctx))
		defer func() { _ = l.Stop(ctx) }()

		lic, err := l.CreateLicense(ctx, licensor.CreateLicenseInput{
			Plan:  plan.Pro,
			Owner: licensor.OwnedByUser("user-123"),
			Email: "jane@example.com",
			Site:  licensor.SiteInfo{SiteURL: "https://example.com"},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), lic.TokenLimit)

		res, err := l.AutoAttachLicense(ctx, lic.Key, licensor.SiteInfo{SiteURL: "https://example.com"})
		require.NoError(t, err)
		assert.Equal(t, res.Organization.ID, res.Site.OrganizationID)
		assert.True(t, res.Site.IsActive)

		balance, err := l.AddCreditsByEmail(ctx, "jane@example.com", 100, "cs_session_1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)

		// A webhook retry with the same session changes nothing.
		balance, err = l.AddCreditsByEmail(ctx, "jane@example.com", 100, "cs_session_1")
		require.NoError(t, err)
		assert.Equal(t, int64(100), balance)

		d := l.EvaluateAccess(ctx, "jane@example.com", "generate")
		assert.True(t, d.Allowed)
		assert.Equal(t, access.ViaCredits, d.Via)

		d = l.EvaluateAccess(ctx, "nobody@example.com", "generate")
		assert.False(t, d.Allowed)
		assert.Equal(t, access.ReasonNoIdentity, d.Reason)
	})

	t.Run("ErrorKinds", func(t *testing.T) {
		_, err := licensor.New(memory.New(), licensor.WithLogger(quietLogger())).
			GetLicense(context.Background(), "missing-key")
		assert.True(t, licensor.IsNotFound(err))
		assert.Equal(t, licensor.KindNotFound, licensor.KindOf(err))
	})
}
