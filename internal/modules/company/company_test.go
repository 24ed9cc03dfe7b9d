package company

import (
	"testing"

	"github.com/likenesshq/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugPattern(t *testing.T) {
	valid := []string{"acme", "acme-ai", "a1-b2-c3", "x"}
	for _, s := range valid {
		assert.True(t, slugPattern.MatchString(s), s)
	}

	invalid := []string{"", "Acme", "acme_ai", "-acme", "acme-", "acme--ai", "acme ai"}
	for _, s := range invalid {
		assert.False(t, slugPattern.MatchString(s), s)
	}
}

func TestParseMethod(t *testing.T) {
	m, err := parseMethod("email")
	require.NoError(t, err)
	assert.Equal(t, models.MethodEmail, m)

	m, err = parseMethod(" web_form ")
	require.NoError(t, err)
	assert.Equal(t, models.MethodWebForm, m)

	m, err = parseMethod("settings")
	require.NoError(t, err)
	assert.Equal(t, models.MethodSettings, m)

	_, err = parseMethod("carrier-pigeon")
	assert.ErrorIs(t, err, ErrBadMethod)
}

func TestAutomatable(t *testing.T) {
	c := models.CompanyModel{OptOutMethod: models.MethodEmail, OptOutEmail: "privacy@acme.test"}
	assert.True(t, c.Automatable())

	c.OptOutEmail = ""
	assert.False(t, c.Automatable(), "email method without an address is not automatable")

	c = models.CompanyModel{OptOutMethod: models.MethodWebForm}
	assert.False(t, c.Automatable())
}
