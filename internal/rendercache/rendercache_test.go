package rendercache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOcrTextCache_MissThenHit(t *testing.T) {
	c := New(t.TempDir(), nil, nil, 200, 800, true)

	_, ok := c.OcrText(0, "")
	assert.False(t, ok, "nothing cached yet")

	require.NoError(t, c.PutOcrText(0, "", "extracted text"))
	text, ok := c.OcrText(0, "")
	require.True(t, ok)
	assert.Equal(t, "extracted text", text)
}

func TestOcrTextCache_HeaderAndFullSuffixesAreIndependent(t *testing.T) {
	c := New(t.TempDir(), nil, nil, 200, 800, true)

	require.NoError(t, c.PutOcrText(3, "_head", "header text"))
	_, ok := c.OcrText(3, "")
	assert.False(t, ok, "full-page cache must not see the header-only entry")

	head, ok := c.OcrText(3, "_head")
	require.True(t, ok)
	assert.Equal(t, "header text", head)
}
