package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyPhoneNumber(t *testing.T) {
	valid := []string{
		"+1 (555) 123-4567",
		"555.123.4567",
		"  +442071838750  ",
		"0035312345678",
	}
	for _, p := range valid {
		assert.True(t, VerifyPhoneNumber(p), p)
	}

	invalid := []string{
		"",
		"12345",               // too short
		"call me maybe",       // letters
		"+1 555 123 4567 x89", // extension marker
	}
	for _, p := range invalid {
		assert.False(t, VerifyPhoneNumber(p), p)
	}
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "globex.com", ExtractDomain("jane@globex.com"))
	assert.Equal(t, "", ExtractDomain("no-at-sign"))
	assert.Equal(t, "", ExtractDomain("two@ats@here"))
}

func TestDisposableDomainsLoaded(t *testing.T) {
	assert.True(t, disposableDomains["mailinator.com"])
	assert.True(t, disposableDomains["yopmail.com"])
	assert.False(t, disposableDomains["gmail.com"])
	assert.False(t, disposableDomains[""])
}
