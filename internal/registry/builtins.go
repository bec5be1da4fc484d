package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowforge/flowforge/pkg/api"
)

// Builtins registers the handlers every engine gets for free.
func Builtins(logger *slog.Logger) *Registry {
	r := New()
	r.Register("log", logHandler(logger))
	r.Register("delay", delayHandler)
	r.Register("waitForSignal", waitForSignalHandler)
	r.Register("http", httpHandler)
	return r
}

// logHandler writes a structured log line and passes its input through as
// output.
func logHandler(logger *slog.Logger) api.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
		message, _ := ac.Input["message"].(string)
		logger.InfoContext(ctx, message,
			"instanceId", ac.Instance.ID,
			"activityId", ac.Activity.ID,
			"attempt", ac.Attempt,
		)
		return api.Ok(ac.Input)
	}
}

// delayHandler is the SleepStep/SleepUntilStep equivalent, generalized into
// an activity that reads a durationMs or untilUnixMs property.
func delayHandler(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
	if until, ok := ac.Activity.Properties["untilUnixMs"]; ok {
		ms, ok := toInt64(until)
		if !ok {
			return api.Fail("INVALID_PROPERTIES", "delay: untilUnixMs must be numeric", false)
		}
		return sleepUntil(ctx, time.UnixMilli(ms), ac.Input)
	}
	if d, ok := ac.Activity.Properties["durationMs"]; ok {
		ms, ok := toInt64(d)
		if !ok {
			return api.Fail("INVALID_PROPERTIES", "delay: durationMs must be numeric", false)
		}
		return sleepFor(ctx, time.Duration(ms)*time.Millisecond, ac.Input)
	}
	return api.Fail("INVALID_PROPERTIES", "delay: requires durationMs or untilUnixMs", false)
}

func sleepFor(ctx context.Context, d time.Duration, input map[string]any) api.ActivityResult {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return api.Ok(input)
	case <-ctx.Done():
		return api.Fail("TIMEOUT", ctx.Err().Error(), true)
	}
}

func sleepUntil(ctx context.Context, t time.Time, input map[string]any) api.ActivityResult {
	return sleepFor(ctx, time.Until(t), input)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// waitForSignalHandler suspends the instance until a signal matching its
// "signal" property is delivered.
func waitForSignalHandler(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
	signal, _ := ac.Activity.Properties["signal"].(string)
	if signal == "" {
		return api.Fail("INVALID_PROPERTIES", "waitForSignal: requires a signal property", false)
	}
	return api.Suspend(signal)
}

// httpHandler supplements the distilled spec's Non-goal list (which
// excludes only the HTTP facade, not an HTTP activity) with a minimal
// net/http-based call-and-capture-response handler, the idiomatic stdlib
// choice since no HTTP client library appears anywhere in the retrieved
// corpus.
func httpHandler(ctx context.Context, ac *api.ActivityContext) api.ActivityResult {
	url, _ := ac.Activity.Properties["url"].(string)
	method, _ := ac.Activity.Properties["method"].(string)
	if url == "" {
		return api.Fail("INVALID_PROPERTIES", "http: requires a url property", false)
	}
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return api.Fail("INVALID_PROPERTIES", err.Error(), false)
	}
	if headers, ok := ac.Activity.Properties["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return api.Fail("HTTP_ERROR", err.Error(), true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Fail("HTTP_ERROR", err.Error(), true)
	}

	output := map[string]any{
		"statusCode": resp.StatusCode,
		"body":       string(body),
	}
	if resp.StatusCode >= 500 {
		return api.Fail("HTTP_ERROR", fmt.Sprintf("server error: %d", resp.StatusCode), true)
	}
	return api.Ok(output)
}
