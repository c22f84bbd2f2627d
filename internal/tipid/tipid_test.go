package tipid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsValid(t *testing.T) {
	id := New()
	assert.Len(t, id, 32)
	assert.True(t, Valid(id))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("0123456789abcdef0123456789abcdef"))
	assert.False(t, Valid("0123456789ABCDEF0123456789abcdef"), "uppercase hex is not valid")
	assert.False(t, Valid("too-short"))
	assert.False(t, Valid(""))
}

func TestNewProducesDistinctIDs(t *testing.T) {
	assert.NotEqual(t, New(), New())
}
