package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineError_ErrorIncludesCodeAndMessage(t *testing.T) {
	err := NewEngineError(CodeInvalidInput, "missing field %q", "amount")
	require.EqualError(t, err, `INVALID_INPUT: missing field "amount"`)
}

func TestEngineError_ErrorWithoutMessage(t *testing.T) {
	err := &EngineError{Code: CodeTimeout}
	require.EqualError(t, err, "TIMEOUT")
}

func TestAsEngineError(t *testing.T) {
	err := NewEngineError(CodeLockFailed, "instance %s is locked", "inst-1")

	ee, ok := AsEngineError(err)
	require.True(t, ok)
	require.Equal(t, CodeLockFailed, ee.Code)

	_, ok = AsEngineError(errors.New("plain error"))
	require.False(t, ok)
}
