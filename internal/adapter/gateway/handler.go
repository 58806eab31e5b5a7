package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
	"smart-query/internal/usecase"
	"smart-query/internal/usecase/ingest"
)

// maxRequestBody bounds the size of any accepted request body.
const maxRequestBody = 1 << 20 // 1 MiB

// TurnRunner runs conversation turns. Implemented by usecase.Orchestrator.
type TurnRunner interface {
	RunTurn(ctx context.Context, threadID string, incoming []domain.Message, cfg usecase.TurnConfig) (*domain.Thread, error)
	RunTurnStream(ctx context.Context, threadID string, incoming []domain.Message, cfg usecase.TurnConfig, emit usecase.StreamEmitter) (*domain.Thread, error)
}

// Ingestor runs document ingestions. Implemented by ingest.Pipeline.
type Ingestor interface {
	Run(ctx context.Context, params ingest.Params) (*ingest.Result, error)
}

// HandlerDeps holds dependencies needed by the HTTP handlers.
type HandlerDeps struct {
	Runner   TurnRunner
	Ingest   Ingestor
	Tools    domain.ToolExecutor   // for /api/v1/status and /metrics; can be nil
	Locker   *usecase.ThreadLocker // for active-thread gauges; can be nil
	Auth     Authenticator         // nil disables authentication
	TurnBase usecase.TurnConfig    // server-wide defaults; per-request settings override
	Logger   *slog.Logger
}

// NewMux builds the HTTP routing table for the API server.
func NewMux(deps HandlerDeps) *http.ServeMux {
	startTime := time.Now()
	metrics := &Metrics{}

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(deps, next)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/invoke", authed(invokeHandler(deps, metrics)))
	mux.HandleFunc("/invoke_last", authed(invokeLastHandler(deps, metrics)))
	mux.HandleFunc("/stream", authed(streamHandler(deps, metrics)))
	mux.HandleFunc("/run-rag", authed(runRAGHandler(deps, metrics)))
	mux.HandleFunc("/healthz", healthzHandler())
	mux.HandleFunc("/api/v1/status", authed(statusHandler(deps, startTime, metrics)))
	mux.HandleFunc("/metrics", authed(metricsHandler(deps, startTime, metrics)))
	return mux
}

// authMiddleware rejects requests whose token does not authenticate. A nil
// Authenticator leaves the endpoint open.
func authMiddleware(deps HandlerDeps, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Auth != nil {
			if _, err := deps.Auth.Authenticate(bearerToken(r)); err != nil {
				writeError(w, deps.Logger, domain.ErrAuthInvalid)
				return
			}
		}
		next(w, r)
	}
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// decodeInvoke reads and validates the shared /invoke-family request body.
// A missing thread ID is replaced with a fresh one.
func decodeInvoke(w http.ResponseWriter, r *http.Request) (*InvokeRequest, error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, fmt.Errorf("method %s not allowed", r.Method)
	}

	var req InvokeRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, domain.NewDomainError("gateway.decode", domain.ErrInvalidToolArgs,
			fmt.Sprintf("invalid request body: %v", err))
	}
	if len(req.Messages) == 0 {
		return nil, domain.NewDomainError("gateway.decode", domain.ErrInvalidToolArgs,
			"messages is required")
	}
	if req.ThreadID == "" {
		req.ThreadID = usecase.NewThreadID()
	}
	return &req, nil
}

// turnConfig merges per-request settings over the server defaults.
func turnConfig(base usecase.TurnConfig, s *TurnSettings) usecase.TurnConfig {
	if s == nil {
		return base
	}
	if s.Model != "" {
		base.ModelRef = s.Model
	}
	if s.UserName != "" {
		base.UserName = s.UserName
	}
	if s.MaxTokens > 0 {
		base.MaxTokens = s.MaxTokens
	}
	if s.Temperature > 0 {
		base.Temperature = s.Temperature
	}
	if s.DatabaseSchema != "" {
		base.ToolSettings.DatabaseSchema = s.DatabaseSchema
	}
	if s.Namespace != "" {
		base.ToolSettings.Namespace = s.Namespace
	}
	if s.MaxSearchResults > 0 {
		base.ToolSettings.MaxSearchResults = s.MaxSearchResults
	}
	if s.TopK > 0 {
		base.ToolSettings.TopK = s.TopK
	}
	return base
}

func invokeHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "gateway.invoke")
		defer span.End()

		req, err := decodeInvoke(w, r)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToolArgs) {
				return // method not allowed, already written
			}
			writeError(w, deps.Logger, err)
			return
		}

		metrics.TurnsTotal.Add(1)
		thread, err := deps.Runner.RunTurn(ctx, req.ThreadID, req.Messages, turnConfig(deps.TurnBase, req.Settings))
		if err != nil {
			metrics.TurnErrorsTotal.Add(1)
			tracer.RecordError(span, err)
			writeError(w, deps.Logger, err)
			return
		}
		tracer.SetOK(span)

		writeJSON(w, http.StatusOK, InvokeResponse{
			ThreadID: thread.ID,
			Messages: thread.Messages,
		})
	}
}

func invokeLastHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "gateway.invoke_last")
		defer span.End()

		req, err := decodeInvoke(w, r)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToolArgs) {
				return
			}
			writeError(w, deps.Logger, err)
			return
		}

		metrics.TurnsTotal.Add(1)
		thread, err := deps.Runner.RunTurn(ctx, req.ThreadID, req.Messages, turnConfig(deps.TurnBase, req.Settings))
		if err != nil {
			metrics.TurnErrorsTotal.Add(1)
			tracer.RecordError(span, err)
			writeError(w, deps.Logger, err)
			return
		}
		tracer.SetOK(span)

		var last domain.Message
		for i := len(thread.Messages) - 1; i >= 0; i-- {
			if thread.Messages[i].Role == domain.RoleAssistant {
				last = thread.Messages[i]
				break
			}
		}
		writeJSON(w, http.StatusOK, LastMessageResponse{
			ThreadID: thread.ID,
			Message:  last,
		})
	}
}

func streamHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "gateway.stream")
		defer span.End()

		req, err := decodeInvoke(w, r)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToolArgs) {
				return
			}
			writeError(w, deps.Logger, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, deps.Logger, fmt.Errorf("streaming unsupported by connection"))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Thread-ID", req.ThreadID)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		emit := func(ev usecase.StreamEvent) {
			if ev.Done {
				return // terminal marker is written below as [DONE]
			}
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		metrics.TurnsTotal.Add(1)
		metrics.StreamsTotal.Add(1)

		// The request context cancels the turn when the client disconnects.
		_, err = deps.Runner.RunTurnStream(ctx, req.ThreadID, req.Messages, turnConfig(deps.TurnBase, req.Settings), emit)
		if err != nil {
			metrics.TurnErrorsTotal.Add(1)
			tracer.RecordError(span, err)
			deps.Logger.Error("streaming turn failed", "thread_id", req.ThreadID, "error", err)
			frame, _ := json.Marshal(ErrorResponse{
				Error: err.Error(),
				Code:  string(domain.ErrorCodeOf(err)),
			})
			fmt.Fprintf(w, "data: %s\n\n", frame)
		} else {
			tracer.SetOK(span)
		}

		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func runRAGHandler(deps HandlerDeps, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.StartSpan(r.Context(), "gateway.run_rag")
		defer span.End()

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if deps.Ingest == nil {
			writeError(w, deps.Logger, domain.NewDomainError("gateway.run_rag", domain.ErrConfigurationMissing,
				"ingestion is not configured: vector index settings are missing"))
			return
		}

		var req IngestRequest
		body := http.MaxBytesReader(w, r.Body, maxRequestBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, deps.Logger, domain.NewDomainError("gateway.decode", domain.ErrInvalidToolArgs,
				fmt.Sprintf("invalid request body: %v", err)))
			return
		}

		metrics.IngestsTotal.Add(1)
		result, err := deps.Ingest.Run(ctx, ingest.Params{
			DocumentURL: req.DocumentURL,
			IndexName:   req.IndexName,
			Namespace:   req.Namespace,
		})
		if err != nil {
			metrics.IngestErrorsTotal.Add(1)
			tracer.RecordError(span, err)
			writeError(w, deps.Logger, err)
			return
		}
		tracer.SetOK(span)

		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a failure to its HTTP status and stable error code.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := httpStatusFor(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Code:  string(domain.ErrorCodeOf(err)),
	})
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrThreadBusy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrContextOverflow):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidToolArgs),
		errors.Is(err, domain.ErrConfigurationMissing),
		errors.Is(err, domain.ErrProviderNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUpstreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
