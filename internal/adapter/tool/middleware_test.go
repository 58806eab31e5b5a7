package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/domain"
)

type echoParams struct {
	Value string `json:"value"`
}

func TestExecuteMiddlewareSuccess(t *testing.T) {
	result, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{"value": "hi"}`),
		func(_ context.Context, _ trace.Span, p echoParams) (any, error) {
			return p.Value, nil
		})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", result.Content)
}

func TestExecuteMiddlewareJSONValue(t *testing.T) {
	result, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{}`),
		func(_ context.Context, _ trace.Span, _ echoParams) (any, error) {
			return map[string]int{"count": 3}, nil
		})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var got map[string]int
	require.NoError(t, json.Unmarshal([]byte(result.Content), &got))
	assert.Equal(t, 3, got["count"])
}

func TestExecuteMiddlewareToolResultPassthrough(t *testing.T) {
	want := &domain.ToolResult{Content: "custom", IsError: true}
	result, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{}`),
		func(_ context.Context, _ trace.Span, _ echoParams) (any, error) {
			return want, nil
		})
	require.NoError(t, err)
	assert.Same(t, want, result)
}

func TestExecuteMiddlewareInvalidParams(t *testing.T) {
	_, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{"value": 42}`),
		func(_ context.Context, _ trace.Span, _ echoParams) (any, error) {
			t.Fatal("handler must not run on bad params")
			return nil, nil
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidToolArgs)
}

func TestExecuteMiddlewareAbsorbableError(t *testing.T) {
	_, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{}`),
		func(_ context.Context, _ trace.Span, _ echoParams) (any, error) {
			return nil, BadArgs("value must be set")
		})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidToolArgs)
	assert.Contains(t, err.Error(), "value must be set")
}

func TestExecuteMiddlewareRuntimeError(t *testing.T) {
	// Non-absorbable failures become error results the model can react to.
	result, err := Execute(context.Background(), "tool.echo", newTestLogger(), json.RawMessage(`{}`),
		func(_ context.Context, _ trace.Span, _ echoParams) (any, error) {
			return nil, fmt.Errorf("%w: timeout", domain.ErrDatabaseQuery)
		})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "timeout")
}

func TestBadArgsIsAbsorbable(t *testing.T) {
	err := BadArgs("missing %s", "query")
	assert.True(t, domain.IsAbsorbable(err))
	assert.True(t, errors.Is(err, domain.ErrInvalidToolArgs))
}

func TestErrResult(t *testing.T) {
	result, err := ErrResult("failed: %d", 7)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "failed: 7", result.Content)
}

func TestJSONResult(t *testing.T) {
	result, err := JSONResult([]string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, `"a"`)
}

func TestTextResult(t *testing.T) {
	result := TextResult("plain")
	assert.Equal(t, "plain", result.Content)
	assert.False(t, result.IsError)
}
