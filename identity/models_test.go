package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/licensor/identity"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", identity.NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "", identity.NormalizeEmail("   "))
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "jane", identity.LocalPart("Jane@example.com"))
	assert.Equal(t, "nodomain", identity.LocalPart("nodomain"))
}
