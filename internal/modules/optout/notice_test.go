package optout

import (
	"strings"
	"testing"

	"github.com/likenesshq/core/internal/models"
	"github.com/likenesshq/core/internal/pkg/contenthash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUser() *models.UserModel {
	return &models.UserModel{Name: "Ada Lovelace", Email: "ada@example.test"}
}

func testCompany() *models.CompanyModel {
	return &models.CompanyModel{
		Name:         "Acme AI",
		Slug:         "acme-ai",
		OptOutMethod: models.MethodEmail,
		OptOutEmail:  "privacy@acme.test",
	}
}

func TestRenderNotice(t *testing.T) {
	subject, body, err := RenderNotice(testUser(), testCompany())
	require.NoError(t, err)

	assert.Equal(t, "Likeness opt-out request on behalf of Ada Lovelace", subject)
	assert.Contains(t, body, "Acme AI")
	assert.Contains(t, body, "ada@example.test")
	assert.NotContains(t, body, "policy", "policy section must be absent without a PolicyURL")
}

func TestRenderNoticePolicyURL(t *testing.T) {
	company := testCompany()
	company.PolicyURL = "https://acme.test/opt-out-policy"

	_, body, err := RenderNotice(testUser(), company)
	require.NoError(t, err)
	assert.Contains(t, body, company.PolicyURL)
}

func TestRenderNoticeDeterministic(t *testing.T) {
	s1, b1, err := RenderNotice(testUser(), testCompany())
	require.NoError(t, err)
	s2, b2, err := RenderNotice(testUser(), testCompany())
	require.NoError(t, err)

	assert.Equal(t, s1, s2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, contenthash.Sum(s1, b1), contenthash.Sum(s2, b2),
		"same inputs must yield the same content hash")
}

func TestRenderNoticeEscapesHTML(t *testing.T) {
	user := testUser()
	user.Name = `<script>alert("x")</script>`

	_, body, err := RenderNotice(user, testCompany())
	require.NoError(t, err)
	assert.False(t, strings.Contains(body, "<script>"), "user input must be escaped")
}

func TestRenderNoticeNilInputs(t *testing.T) {
	_, _, err := RenderNotice(nil, testCompany())
	require.Error(t, err)
	var tplErr *TemplateError
	assert.ErrorAs(t, err, &tplErr)
}

func TestRenderNoticeMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(u *models.UserModel, c *models.CompanyModel)
	}{
		{"empty user name", func(u *models.UserModel, c *models.CompanyModel) { u.Name = "" }},
		{"empty user email", func(u *models.UserModel, c *models.CompanyModel) { u.Email = "" }},
		{"empty company name", func(u *models.UserModel, c *models.CompanyModel) { c.Name = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user, company := testUser(), testCompany()
			tc.mutate(user, company)

			_, _, err := RenderNotice(user, company)
			require.Error(t, err)
			var tplErr *TemplateError
			assert.ErrorAs(t, err, &tplErr)

			_, _, err = RenderFollowUp(user, company)
			assert.ErrorAs(t, err, &tplErr)
		})
	}
}
