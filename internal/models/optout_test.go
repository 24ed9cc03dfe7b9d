package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptOutStatusTerminal(t *testing.T) {
	assert.False(t, OptOutNotStarted.Terminal())

	for _, s := range []OptOutStatus{
		OptOutSent,
		OptOutConfirmed,
		OptOutDenied,
		OptOutCompletedWeb,
		OptOutCompletedSettings,
	} {
		assert.True(t, s.Terminal(), string(s))
	}
}
