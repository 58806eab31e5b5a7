package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"smart-query/internal/domain"
)

// stubTool is a minimal tool for exercising the validation wrapper.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: s.name, Description: "stub", Parameters: s.schema}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return s.result, nil
}

func requiredNameSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"name": {"type": "string"}},
		"required": ["name"]
	}`)
}

func TestSchemaValidationValidParams(t *testing.T) {
	inner := &stubTool{name: "stub", schema: requiredNameSchema(), result: &domain.ToolResult{Content: "ok"}}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"name":"alice"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError || result.Content != "ok" {
		t.Errorf("result = %+v, want ok", result)
	}
}

func TestSchemaValidationRejectsMissingRequired(t *testing.T) {
	inner := &stubTool{name: "stub", schema: requiredNameSchema(), result: &domain.ToolResult{Content: "unreachable"}}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	_, err = wrapped.Execute(context.Background(), json.RawMessage(`{}`))
	if !errors.Is(err, domain.ErrInvalidToolArgs) {
		t.Fatalf("err = %v, want ErrInvalidToolArgs", err)
	}
	if !domain.IsAbsorbable(err) {
		t.Error("validation failure must be absorbable by the turn loop")
	}
}

func TestSchemaValidationRejectsWrongType(t *testing.T) {
	inner := &stubTool{
		name:   "stub",
		schema: json.RawMessage(`{"type":"object","properties":{"count":{"type":"integer"}}}`),
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	_, err = wrapped.Execute(context.Background(), json.RawMessage(`{"count":"not-a-number"}`))
	if !errors.Is(err, domain.ErrInvalidToolArgs) {
		t.Fatalf("err = %v, want ErrInvalidToolArgs", err)
	}
}

func TestSchemaValidationRejectsMalformedJSON(t *testing.T) {
	inner := &stubTool{name: "stub", schema: requiredNameSchema()}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	_, err = wrapped.Execute(context.Background(), json.RawMessage(`{"name":`))
	if !errors.Is(err, domain.ErrInvalidToolArgs) {
		t.Fatalf("err = %v, want ErrInvalidToolArgs", err)
	}
}

func TestSchemaValidationPassthroughWithoutSchema(t *testing.T) {
	for _, schema := range []json.RawMessage{nil, json.RawMessage(`null`)} {
		inner := &stubTool{name: "stub", schema: schema}
		wrapped, err := WithSchemaValidation(inner)
		if err != nil {
			t.Fatalf("WithSchemaValidation: %v", err)
		}
		if wrapped != domain.Tool(inner) {
			t.Errorf("schema %q: expected tool returned unwrapped", schema)
		}
	}
}

func TestSchemaValidationCompileError(t *testing.T) {
	inner := &stubTool{name: "stub", schema: json.RawMessage(`{"type": "invalid_type"}`)}
	if _, err := WithSchemaValidation(inner); err == nil {
		t.Fatal("expected compile error for invalid schema")
	}
}

func TestSchemaValidationDelegatesMetadata(t *testing.T) {
	inner := &stubTool{name: "my_tool", schema: json.RawMessage(`{"type":"object"}`)}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	if wrapped.Name() != "my_tool" {
		t.Errorf("Name() = %q", wrapped.Name())
	}
	if wrapped.Description() != "stub" {
		t.Errorf("Description() = %q", wrapped.Description())
	}
	if wrapped.Schema().Name != "my_tool" {
		t.Errorf("Schema().Name = %q", wrapped.Schema().Name)
	}
}

func TestRegistryWrapsWithValidation(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	inner := &stubTool{
		name:   "validated_tool",
		schema: requiredNameSchema(),
		result: &domain.ToolResult{Content: "executed"},
	}
	if err := reg.Register(inner); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Get("validated_tool")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	result, err := got.Execute(context.Background(), json.RawMessage(`{"name":"alice"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "executed" {
		t.Errorf("Content = %q, want %q", result.Content, "executed")
	}

	if _, err := got.Execute(context.Background(), json.RawMessage(`{}`)); !errors.Is(err, domain.ErrInvalidToolArgs) {
		t.Errorf("err = %v, want ErrInvalidToolArgs", err)
	}
}

func TestRegistryBadSchemaRegistersUnwrapped(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	inner := &stubTool{
		name:   "bad_schema_tool",
		schema: json.RawMessage(`{"type": "invalid_type"}`),
		result: &domain.ToolResult{Content: "still works"},
	}
	if err := reg.Register(inner); err != nil {
		t.Fatalf("Register with bad schema: %v", err)
	}

	got, err := reg.Get("bad_schema_tool")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	result, err := got.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "still works" {
		t.Errorf("Content = %q", result.Content)
	}
}

func TestRegistryNilLoggerSkipsValidation(t *testing.T) {
	reg := NewRegistry(nil)

	inner := &stubTool{
		name:   "unwrapped",
		schema: requiredNameSchema(),
		result: &domain.ToolResult{Content: "no validation"},
	}
	if err := reg.Register(inner); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := reg.Get("unwrapped")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	result, err := got.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Content != "no validation" {
		t.Errorf("Content = %q", result.Content)
	}
}
