package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_IsAndMessage(t *testing.T) {
	v := &ValidationError{}
	require.NoError(t, v.OrNil())

	v.Add("quantity", "must be at least 1")
	v.Add("plate", "invalid format")
	v.Add("plate", "required")

	err := fmt.Errorf("create vehicle: %w", v.OrNil())
	require.ErrorIs(t, err, ErrValidation)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"invalid format", "required"}, ve.Fields["plate"])
	assert.Equal(t, "validation error: plate: invalid format, required; quantity: must be at least 1", v.Error())
}

func TestValidationError_NotOtherSentinels(t *testing.T) {
	err := NewValidationError("password", "too short")
	assert.False(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{37.5, 37.5},
		{3 * 12.50, 37.5},
		{0.1 + 0.2, 0.3},
		{1.005 * 1000, 1005},
		{0.01, 0.01},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Round2(tt.in), 1e-9, "Round2(%v)", tt.in)
	}
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte{1, 2, 3}
	WipeByteArray(buf)
	assert.Equal(t, []byte{0, 0, 0}, buf)
	WipeByteArray(nil)
}

func TestGenerateRandByteArray(t *testing.T) {
	a := GenerateRandByteArray(32)
	b := GenerateRandByteArray(32)
	require.Len(t, a, 32)
	require.Len(t, b, 32)
	assert.NotEqual(t, a, b)
}
