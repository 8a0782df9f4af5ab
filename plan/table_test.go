package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/licensor/plan"
)

func TestTokenLimit(t *testing.T) {
	table := plan.DefaultTable()

	assert.Equal(t, int64(50), table.TokenLimit(plan.ServiceAltText, plan.Free))
	assert.Equal(t, int64(1000), table.TokenLimit(plan.ServiceAltText, plan.Pro))
	assert.Equal(t, int64(10000), table.TokenLimit(plan.ServiceAltText, plan.Agency))
	assert.Equal(t, int64(100), table.TokenLimit(plan.ServiceSEOMeta, plan.Pro))
}

func TestTokenLimitFallbacks(t *testing.T) {
	table := plan.NewTable(map[plan.Service]plan.Limits{
		"partial": {plan.Free: 7},
		"main":    {plan.Free: 1, plan.Pro: 2},
	}, "main")

	// Missing plan falls back to the service's free tier.
	assert.Equal(t, int64(7), table.TokenLimit("partial", plan.Agency))
	// Unknown service falls back to the default service.
	assert.Equal(t, int64(2), table.TokenLimit("nope", plan.Pro))
	assert.Equal(t, plan.Service("main"), table.Resolve(""))
	assert.True(t, table.Has("partial"))
	assert.False(t, table.Has("nope"))
}

func TestPlanHelpers(t *testing.T) {
	assert.True(t, plan.Pro.Valid())
	assert.False(t, plan.Plan("enterprise").Valid())
	assert.Equal(t, plan.Agency, plan.Parse("  AGENCY "))
	assert.Equal(t, 10, plan.Agency.MaxSites())
	assert.Equal(t, 1, plan.Pro.MaxSites())
	assert.Equal(t, 1, plan.Free.MaxSites())
	assert.True(t, plan.Pro.Paid())
	assert.False(t, plan.Free.Paid())
}
