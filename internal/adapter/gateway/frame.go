package gateway

import (
	"smart-query/internal/domain"
)

// TurnSettings are the optional per-request overrides for a single turn.
// Zero-valued fields fall back to the server's configured defaults.
type TurnSettings struct {
	Model            string  `json:"model,omitempty"` // "provider/model"
	UserName         string  `json:"user_name,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	DatabaseSchema   string  `json:"database_schema,omitempty"`
	Namespace        string  `json:"namespace,omitempty"`
	MaxSearchResults int     `json:"max_search_results,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
}

// InvokeRequest is the JSON body accepted by /invoke, /invoke_last and
// /stream. ThreadID is optional; a missing one is replaced with a fresh
// identifier that the response echoes back.
type InvokeRequest struct {
	ThreadID string           `json:"thread_id,omitempty"`
	Messages []domain.Message `json:"messages"`
	Settings *TurnSettings    `json:"settings,omitempty"`
}

// InvokeResponse carries the full post-turn transcript.
type InvokeResponse struct {
	ThreadID string           `json:"thread_id"`
	Messages []domain.Message `json:"messages"`
}

// LastMessageResponse carries only the final assistant message of a turn.
type LastMessageResponse struct {
	ThreadID string         `json:"thread_id"`
	Message  domain.Message `json:"message"`
}

// IngestRequest is the JSON body accepted by /run-rag.
type IngestRequest struct {
	IndexName   string `json:"index_name,omitempty"`
	Namespace   string `json:"namespace,omitempty"`
	DocumentURL string `json:"document_url"`
}

// ErrorResponse is the JSON body returned for any failed request. Code is
// the stable machine-parseable category from the domain error mapping.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
