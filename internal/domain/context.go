package domain

import "context"

type ctxKey string

const threadCtxKey ctxKey = "thread_id"

// ContextWithThreadID returns a new context carrying the continuation key.
func ContextWithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadCtxKey, threadID)
}

// ThreadIDFromContext extracts the continuation key from the context.
// Returns empty string if not set.
func ThreadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(threadCtxKey).(string); ok {
		return v
	}
	return ""
}

const toolSettingsCtxKey ctxKey = "tool_settings"

// ToolSettings are the turn-scoped settings tools resolve at execution time.
// They are validated before the first model call of a turn; a tool that needs
// a missing setting never runs.
type ToolSettings struct {
	DatabaseSchema   string `json:"database_schema,omitempty"`
	Namespace        string `json:"namespace,omitempty"`
	MaxSearchResults int    `json:"max_search_results,omitempty"`
	TopK             int    `json:"top_k,omitempty"`
}

// ContextWithToolSettings returns a new context carrying the turn's tool
// settings.
func ContextWithToolSettings(ctx context.Context, s ToolSettings) context.Context {
	return context.WithValue(ctx, toolSettingsCtxKey, s)
}

// ToolSettingsFromContext extracts the turn's tool settings. Returns the
// zero value if not set.
func ToolSettingsFromContext(ctx context.Context) ToolSettings {
	if v, ok := ctx.Value(toolSettingsCtxKey).(ToolSettings); ok {
		return v
	}
	return ToolSettings{}
}
