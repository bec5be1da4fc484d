package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/flowforge/pkg/api"
)

func TestRegistry_RegisterAndLookupIsCaseInsensitive(t *testing.T) {
	r := New()
	r.Register("Log", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		return api.Ok(nil)
	})

	h, ok := r.Lookup("log")
	require.True(t, ok)
	require.NotNil(t, h)

	_, ok = r.Lookup("missing")
	require.False(t, ok)
}

func TestRegistry_RegisterReplacesExisting(t *testing.T) {
	r := New()
	r.Register("echo", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		return api.Ok(map[string]any{"v": 1})
	})
	r.Register("echo", func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		return api.Ok(map[string]any{"v": 2})
	})

	h, ok := r.Lookup("ECHO")
	require.True(t, ok)
	result := h(context.Background(), &api.ActivityContext{})
	require.Equal(t, 2, result.Output["v"])
}
