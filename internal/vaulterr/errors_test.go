package vaulterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassOfWrapped(t *testing.T) {
	require := require.New(t)

	err := fmt.Errorf("failed to approve: %w", ErrAlreadyApproved)
	class, ok := ClassOf(err)
	require.True(ok)
	require.Equal(State, class)
	require.ErrorIs(err, ErrAlreadyApproved)
	require.False(errors.Is(err, ErrAlreadyRejected))

	_, ok = ClassOf(errors.New("plain"))
	require.False(ok)
}

func TestCodesAreStable(t *testing.T) {
	tests := []struct {
		err  *Error
		code uint32
	}{
		{ErrInvalidRoleCount, 6000},
		{ErrMalformedMessage, 6013},
		{ErrAccountMismatch, 6017},
		{ErrMessageDecode, 6023},
	}
	for _, tt := range tests {
		t.Run(tt.err.Name, func(t *testing.T) {
			require.Equal(t, tt.code, tt.err.Code)
			got, ok := FromCode(tt.code)
			require.True(t, ok)
			require.Same(t, tt.err, got)
		})
	}
}

func TestDecodeAndMalformedAreDistinct(t *testing.T) {
	require.NotEqual(t, ErrMessageDecode.Code, ErrMalformedMessage.Code)
	require.False(t, errors.Is(ErrMessageDecode, ErrMalformedMessage))
	require.Equal(t, "structural", Structural.String())
}
