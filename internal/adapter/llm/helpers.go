package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
)

// maxResponseBody caps how much of an LLM API response body is read.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

func newAPIRequest(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// doJSONRequest POSTs a JSON body and returns the response body. Non-200
// statuses come back as domain errors via mapHTTPError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := newAPIRequest(ctx, url, body, headers)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// doStreamRequest POSTs a JSON body for an SSE response and hands back the
// open response; the caller owns Body. Non-200 statuses are drained briefly
// for the error detail and returned as domain errors.
func doStreamRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := newAPIRequest(ctx, url, body, headers)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstreamFailure, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, mapHTTPError(resp.StatusCode, respBody)
	}
	return resp, nil
}

func logChatCompleted(logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.Debug("llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tokens", result.Usage.TotalTokens,
	)
}

func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

// mapHTTPError converts a failed API status into a domain error. The turn
// loop never retries upstream model failures, so anything unrecognized maps
// to ErrUpstreamFailure and surfaces to the caller as-is.
func mapHTTPError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("API error %d: %s", statusCode, string(body))

	var sentinel error
	switch statusCode {
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = domain.ErrAuthInvalid
	case http.StatusRequestEntityTooLarge:
		sentinel = domain.ErrContextOverflow
	default:
		sentinel = domain.ErrUpstreamFailure
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}
