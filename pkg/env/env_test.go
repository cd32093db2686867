package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	t.Setenv("COMMERCE_TEST_VALUE", "  console ")
	t.Setenv("COMMERCE_TEST_BLANK", "   ")

	assert.Equal(t, "console", Get("COMMERCE_TEST_VALUE", "json"))
	assert.Equal(t, "json", Get("COMMERCE_TEST_BLANK", "json"))
	assert.Equal(t, "json", Get("COMMERCE_TEST_MISSING", "json"))
}

func TestFirst(t *testing.T) {
	t.Setenv("COMMERCE_TEST_PRIMARY", "")
	t.Setenv("COMMERCE_TEST_SECONDARY", "web.1")

	assert.Equal(t, "web.1", First("COMMERCE_TEST_PRIMARY", "COMMERCE_TEST_SECONDARY"))
	assert.Empty(t, First("COMMERCE_TEST_MISSING"))
}

func TestBool(t *testing.T) {
	t.Setenv("COMMERCE_TEST_FLAG", "true")
	t.Setenv("COMMERCE_TEST_GARBAGE", "perhaps")

	assert.True(t, Bool("COMMERCE_TEST_FLAG", false))
	assert.True(t, Bool("COMMERCE_TEST_GARBAGE", true))
	assert.False(t, Bool("COMMERCE_TEST_MISSING", false))
}
