package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NewBadInput("x"), 400},
		{NewCorruptPdf("x"), 400},
		{NewFevRequired("x"), 400},
		{NewNotFound("x"), 404},
		{NewTooLarge("x"), 413},
		{NewUnresolved("x", nil, nil), 422},
		{NewOcrDisabled("x"), 503},
		{NewMetaBusy("x"), 503},
		{NewInternal("x", nil), 500},
		{errors.New("plain error"), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusCode(tc.err))
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Cancelled, KindOf(NewCancelled()))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(NewCancelled()))
	assert.False(t, IsCancelled(NewBadInput("x")))
}

func TestErrorWrapsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := NewInternal("doing a thing", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "root cause")
	assert.Contains(t, err.Error(), "doing a thing")
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewNotFound("missing"))
	e, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, NotFound, e.Kind)

	_, ok = As(errors.New("not ours"))
	assert.False(t, ok)
}

func TestNewUnresolvedCarriesDetectedValues(t *testing.T) {
	nit := "123456789"
	err := NewUnresolved("missing code", &nit, nil)
	assert.Equal(t, &nit, err.NitDetected)
	assert.Nil(t, err.OcfeDetected)
}
