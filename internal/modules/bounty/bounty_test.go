package bounty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEvidenceURL(t *testing.T) {
	valid := []string{
		"https://imgur.example/abc",
		"http://archive.example/page?id=1",
		"  https://spaced.example/x  ",
	}
	for _, raw := range valid {
		assert.NoError(t, validateEvidenceURL(raw), raw)
	}

	invalid := []string{
		"",
		"ftp://files.example/x",
		"javascript:alert(1)",
		"https://",
		"just some text",
	}
	for _, raw := range invalid {
		assert.ErrorIs(t, validateEvidenceURL(raw), ErrBadEvidenceURL, raw)
	}
}
