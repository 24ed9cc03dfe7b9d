package contenthash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	a := Sum("subject", "body")
	b := Sum("subject", "body")
	assert.Equal(t, a, b, "identical inputs must hash identically")
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Sum("subject", "body2"))
	assert.NotEqual(t, a, Sum("subject2", "body"))

	// The separator keeps (subject, body) boundaries unambiguous.
	assert.NotEqual(t, Sum("ab", "c"), Sum("a", "bc"))
}
