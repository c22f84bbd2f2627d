package ocrengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLang(t *testing.T) {
	assert.Equal(t, []string{"spa", "eng"}, splitLang("spa+eng"))
	assert.Equal(t, []string{"eng"}, splitLang("eng"))
}
