package pageindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/tipificador/internal/errs"
)

func TestBuild(t *testing.T) {
	idx := Build([]int{2, 0, 1})
	require.Equal(t, 3, idx.TotalPages())
	assert.Equal(t, Ref{PdfIdx: 0, LocalPage: 0}, idx[0])
	assert.Equal(t, Ref{PdfIdx: 0, LocalPage: 1}, idx[1])
	assert.Equal(t, Ref{PdfIdx: 2, LocalPage: 0}, idx[2])
}

func TestResolve_OutOfRange(t *testing.T) {
	idx := Build([]int{1})
	_, err := idx.Resolve(5)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.NotFound, e.Kind)

	_, err = idx.Resolve(-1)
	require.Error(t, err)
}

func TestBuild_Empty(t *testing.T) {
	idx := Build(nil)
	assert.Equal(t, 0, idx.TotalPages())
}
