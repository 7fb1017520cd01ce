package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone_FoldsInternationalPrefix(t *testing.T) {
	assert.Equal(t, "0812345678", NormalizePhone("+66 81-234-5678"))
	assert.Equal(t, "0812345678", NormalizePhone("0812345678"))
	assert.Equal(t, "66812345", NormalizePhone("66812345"))
	assert.Equal(t, "", NormalizePhone("call me"))
}

func TestNormalizeName_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "somchai prasert", NormalizeName("  Somchai \t Prasert "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "somchai@example.com", NormalizeEmail(" Somchai@Example.COM "))
}

func TestStableHashID_InsensitiveToFormatting(t *testing.T) {
	a := StableHashID("Somchai Prasert", "+66812345678", "Somchai@Example.com")
	b := StableHashID("somchai   prasert", "081-234-5678", "somchai@example.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := StableHashID("Somchai Prasert", "+66812345679", "somchai@example.com")
	assert.NotEqual(t, a, c)
}
