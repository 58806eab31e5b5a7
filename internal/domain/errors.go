package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	// Turn-level failures.
	ErrConfigurationMissing   = fmt.Errorf("required configuration missing")
	ErrUnexpectedMessageRole  = fmt.Errorf("unexpected message role")
	ErrToolLoopExceeded       = fmt.Errorf("tool loop exceeded maximum rounds")
	ErrThreadNotFound         = fmt.Errorf("thread not found")
	ErrThreadBusy             = fmt.Errorf("thread has a turn in flight")
	ErrProviderNotFound       = fmt.Errorf("llm provider not found")
	ErrContextOverflow        = fmt.Errorf("context window exceeded")

	// Tool-call failures absorbed into the transcript.
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrInvalidToolArgs  = fmt.Errorf("invalid tool arguments")

	// Upstream failures. Not retried by the orchestrator; they propagate to
	// the caller as a single error response.
	ErrUpstreamFailure = fmt.Errorf("upstream service failure")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")

	// Embedding / vector errors.
	ErrEmbeddingFailed = fmt.Errorf("embedding generation failed")
	ErrVectorStore     = fmt.Errorf("vector store operation failed")
	ErrVectorSearch    = fmt.Errorf("vector search failed")

	// Database tool errors.
	ErrQueryNotReadOnly = fmt.Errorf("query contains a write operation")
	ErrDatabaseQuery    = fmt.Errorf("database query failed")

	// Ingestion errors.
	ErrDocumentFetch   = fmt.Errorf("document fetch failed")
	ErrDocumentExtract = fmt.Errorf("document text extraction failed")

	ErrConfigLoad = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Tool.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsAbsorbable reports whether a tool-call failure should be surfaced as a
// tool-result message (so the model can self-correct) rather than aborting
// the turn.
func IsAbsorbable(err error) bool {
	return errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInvalidToolArgs)
}

// ErrorCode is a machine-parseable error category for monitoring and API
// responses.
type ErrorCode string

// Every sentinel error maps to exactly one code.
const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeConfigurationMissing  ErrorCode = "CONFIGURATION_MISSING"
	CodeUnexpectedMessageRole ErrorCode = "UNEXPECTED_MESSAGE_ROLE"
	CodeToolLoopExceeded      ErrorCode = "TOOL_LOOP_EXCEEDED"
	CodeThreadNotFound        ErrorCode = "THREAD_NOT_FOUND"
	CodeThreadBusy            ErrorCode = "THREAD_BUSY"
	CodeProviderNotFound      ErrorCode = "PROVIDER_NOT_FOUND"
	CodeContextOverflow       ErrorCode = "CONTEXT_OVERFLOW"
	CodeToolNotFound          ErrorCode = "TOOL_NOT_FOUND"
	CodeInvalidToolArgs       ErrorCode = "INVALID_TOOL_ARGUMENTS"
	CodeUpstreamFailure       ErrorCode = "UPSTREAM_FAILURE"
	CodeRateLimit             ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid           ErrorCode = "AUTH_INVALID"
	CodeToolFailure           ErrorCode = "TOOL_FAILURE"
	CodeEmbeddingFailed       ErrorCode = "EMBEDDING_FAILED"
	CodeVectorStore           ErrorCode = "VECTOR_STORE"
	CodeVectorSearch          ErrorCode = "VECTOR_SEARCH"
	CodeQueryNotReadOnly      ErrorCode = "QUERY_NOT_READ_ONLY"
	CodeDatabaseQuery         ErrorCode = "DATABASE_QUERY"
	CodeDocumentFetch         ErrorCode = "DOCUMENT_FETCH"
	CodeDocumentExtract       ErrorCode = "DOCUMENT_EXTRACT"
	CodeConfigLoad            ErrorCode = "CONFIG_LOAD"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrConfigurationMissing:  CodeConfigurationMissing,
	ErrUnexpectedMessageRole: CodeUnexpectedMessageRole,
	ErrToolLoopExceeded:      CodeToolLoopExceeded,
	ErrThreadNotFound:        CodeThreadNotFound,
	ErrThreadBusy:            CodeThreadBusy,
	ErrProviderNotFound:      CodeProviderNotFound,
	ErrContextOverflow:       CodeContextOverflow,
	ErrToolNotFound:          CodeToolNotFound,
	ErrInvalidToolArgs:       CodeInvalidToolArgs,
	ErrUpstreamFailure:       CodeUpstreamFailure,
	ErrRateLimit:             CodeRateLimit,
	ErrAuthInvalid:           CodeAuthInvalid,
	ErrToolFailure:           CodeToolFailure,
	ErrEmbeddingFailed:       CodeEmbeddingFailed,
	ErrVectorStore:           CodeVectorStore,
	ErrVectorSearch:          CodeVectorSearch,
	ErrQueryNotReadOnly:      CodeQueryNotReadOnly,
	ErrDatabaseQuery:         CodeDatabaseQuery,
	ErrDocumentFetch:         CodeDocumentFetch,
	ErrDocumentExtract:       CodeDocumentExtract,
	ErrConfigLoad:            CodeConfigLoad,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
