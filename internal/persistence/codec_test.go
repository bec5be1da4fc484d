package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue_RoundTrip(t *testing.T) {
	in := map[string]any{"amount": 42.0, "currency": "USD"}

	data, err := EncodeValue(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":42,"currency":"USD"}`, string(data))

	out, err := DecodeValue[map[string]any](data)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncodeValue_Nil(t *testing.T) {
	data, err := EncodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestDecodeValue_Empty(t *testing.T) {
	out, err := DecodeValue[map[string]any](nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestDecodeValue_InvalidJSON(t *testing.T) {
	_, err := DecodeValue[map[string]any]([]byte("not json"))
	require.Error(t, err)
}
