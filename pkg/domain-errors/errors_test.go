package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesCodeAndMessage(t *testing.T) {
	err := New(CodeValidation, "weights must sum to one")
	require.Error(t, err)
	assert.Equal(t, "weights must sum to one", err.Error())
	assert.True(t, HasCode(err, CodeValidation))
	assert.False(t, HasCode(err, CodeInternal))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("open intrinsic_calibration.json: no such file")
	err := Wrap(cause, CodeInternal, "failed to load artifacts")

	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInternal))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to load artifacts: ")
	assert.Contains(t, err.Error(), "no such file")
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestHasCode_SurvivesFmtWrapping(t *testing.T) {
	inner := New(CodeNotFound, "method not in catalog")
	outer := fmt.Errorf("evaluating layer: %w", inner)

	assert.True(t, HasCode(outer, CodeNotFound))
	assert.True(t, Is(outer, CodeNotFound))
	assert.False(t, HasCode(outer, CodeConflict))
}

func TestHasCode_PlainErrorHasNoCode(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
	assert.False(t, HasCode(nil, CodeInternal))
}

func TestCodeOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeBadRequest, CodeOf(New(CodeBadRequest, "bad payload")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("uncoded")))
}

func TestMessage_ExcludesCauseChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "audit store unreachable")

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "audit store unreachable", de.Message())
	assert.Equal(t, CodeUnavailable, de.Code())
}
