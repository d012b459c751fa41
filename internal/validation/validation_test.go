package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("bk_0123456789abcdef01234567"))
	assert.True(t, IsValidID("dsp_deadbeefdeadbeefdeadbeef"))
	assert.False(t, IsValidID("booking-123"))
	assert.False(t, IsValidID("bk_XYZ"))
	assert.False(t, IsValidID(""))
}

func TestIsValidCurrency(t *testing.T) {
	assert.True(t, IsValidCurrency("usd"))
	assert.True(t, IsValidCurrency("eur"))
	assert.False(t, IsValidCurrency("USD"))
	assert.False(t, IsValidCurrency("us"))
	assert.False(t, IsValidCurrency("dollars"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 100))
	assert.Equal(t, "ab", SanitizeString("abcd", 2))
	assert.Equal(t, "ab", SanitizeString("a\x00b", 100))
}

func TestValidate_CollectsErrors(t *testing.T) {
	errs := Validate(
		Required("customer_id", ""),
		PositiveAmount("amount", -5),
		ValidCurrency("currency", "US"),
	)
	assert.Len(t, errs, 3)
	assert.Equal(t, "customer_id", errs[0].Field)
}

func TestValidate_AllPass(t *testing.T) {
	errs := Validate(
		Required("customer_id", "cus_1"),
		PositiveAmount("amount", 10000),
		ValidCurrency("currency", "usd"),
	)
	assert.Empty(t, errs)
}
