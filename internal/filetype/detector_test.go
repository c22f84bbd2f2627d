package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	d := New()
	assert.True(t, d.IsPDF([]byte("%PDF-1.7\n%some pdf content follows")))
	assert.False(t, d.IsPDF([]byte("plain text file, not a pdf at all")))
	assert.False(t, d.IsPDF([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}))
	assert.False(t, d.IsPDF(nil))
}
