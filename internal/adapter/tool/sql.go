package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"smart-query/internal/adapter/db"
	"smart-query/internal/domain"
	"smart-query/internal/infra/tracer"
)

// StringList accepts either a JSON string or an array of strings. Models
// frequently send a bare string where a list is expected; both are valid.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings")
	}
	*s = StringList(many)
	return nil
}

// writeStatementRe matches statements that modify state. Word boundaries
// keep column names like "created_at" or "update_count" from tripping it.
var writeStatementRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|grant|revoke|copy|vacuum)\b`)

// requireSchema is the shared settings check for the SQL tools: each needs
// the turn to name which tenant schema to operate in.
func requireSchema(s domain.ToolSettings) error {
	if s.DatabaseSchema == "" {
		return domain.NewDomainError("tool.settings", domain.ErrConfigurationMissing,
			"database_schema is required for SQL tools")
	}
	return nil
}

// --- list_tables ---

// ListTablesTool lists the base tables of the turn's schema.
type ListTablesTool struct {
	db     db.SchemaReader
	logger *slog.Logger
}

func NewListTablesTool(reader db.SchemaReader, logger *slog.Logger) *ListTablesTool {
	return &ListTablesTool{db: reader, logger: logger}
}

func (t *ListTablesTool) Name() string { return "list_tables" }
func (t *ListTablesTool) Description() string {
	return "List the tables available in the marketing database"
}

func (t *ListTablesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
	}
}

func (t *ListTablesTool) ValidateSettings(s domain.ToolSettings) error {
	return requireSchema(s)
}

type listTablesParams struct{}

func (t *ListTablesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_tables", t.logger, params,
		func(ctx context.Context, span trace.Span, _ listTablesParams) (any, error) {
			schema := domain.ToolSettingsFromContext(ctx).DatabaseSchema
			span.SetAttributes(tracer.StringAttr("db.schema", schema))

			tables, err := t.db.ListTables(ctx, schema)
			if err != nil {
				return nil, err
			}
			if len(tables) == 0 {
				return TextResult(fmt.Sprintf("No tables found in schema %q.", schema)), nil
			}
			return JSONResult(map[string][]string{"tables": tables})
		},
	)
}

// --- get_table_columns ---

// TableColumnsTool describes the columns of one or more tables.
type TableColumnsTool struct {
	db     db.SchemaReader
	logger *slog.Logger
}

func NewTableColumnsTool(reader db.SchemaReader, logger *slog.Logger) *TableColumnsTool {
	return &TableColumnsTool{db: reader, logger: logger}
}

func (t *TableColumnsTool) Name() string { return "get_table_columns" }
func (t *TableColumnsTool) Description() string {
	return "Get the column names and types for one or more tables"
}

func (t *TableColumnsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"table_names": {
					"description": "Table name or list of table names",
					"anyOf": [
						{"type": "string"},
						{"type": "array", "items": {"type": "string"}}
					]
				}
			},
			"required": ["table_names"]
		}`),
	}
}

func (t *TableColumnsTool) ValidateSettings(s domain.ToolSettings) error {
	return requireSchema(s)
}

type tableColumnsParams struct {
	TableNames StringList `json:"table_names"`
}

func (t *TableColumnsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_table_columns", t.logger, params,
		func(ctx context.Context, span trace.Span, p tableColumnsParams) (any, error) {
			if len(p.TableNames) == 0 {
				return nil, BadArgs("table_names must not be empty")
			}
			schema := domain.ToolSettingsFromContext(ctx).DatabaseSchema
			span.SetAttributes(
				tracer.StringAttr("db.schema", schema),
				tracer.IntAttr("db.tables", len(p.TableNames)),
			)

			out := make(map[string][]db.Column, len(p.TableNames))
			for _, table := range p.TableNames {
				cols, err := t.db.TableColumns(ctx, schema, table)
				if err != nil {
					return nil, err
				}
				out[table] = cols
			}
			return out, nil
		},
	)
}

// --- execute_sql_query ---

// ExecuteSQLTool runs a read-only analytics query in the turn's schema.
type ExecuteSQLTool struct {
	db     db.QueryRunner
	logger *slog.Logger
}

func NewExecuteSQLTool(runner db.QueryRunner, logger *slog.Logger) *ExecuteSQLTool {
	return &ExecuteSQLTool{db: runner, logger: logger}
}

func (t *ExecuteSQLTool) Name() string { return "execute_sql_query" }
func (t *ExecuteSQLTool) Description() string {
	return "Execute a read-only SQL query against the marketing database"
}

func (t *ExecuteSQLTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "A SELECT query to run"}
			},
			"required": ["query"]
		}`),
	}
}

func (t *ExecuteSQLTool) ValidateSettings(s domain.ToolSettings) error {
	return requireSchema(s)
}

type executeSQLParams struct {
	Query string `json:"query"`
}

func (t *ExecuteSQLTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.execute_sql_query", t.logger, params,
		func(ctx context.Context, span trace.Span, p executeSQLParams) (any, error) {
			query := strings.TrimSpace(p.Query)
			if query == "" {
				return nil, BadArgs("query must not be empty")
			}
			if m := writeStatementRe.FindString(query); m != "" {
				return nil, fmt.Errorf("%w: statement contains %q; only read-only queries are permitted",
					domain.ErrQueryNotReadOnly, strings.ToUpper(m))
			}

			schema := domain.ToolSettingsFromContext(ctx).DatabaseSchema
			span.SetAttributes(tracer.StringAttr("db.schema", schema))

			rows, err := t.db.RunQuery(ctx, schema, query)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return TextResult("The query returned no rows."), nil
			}
			return JSONResult(map[string]any{"result": rows})
		},
	)
}

// Compile-time interface checks.
var (
	_ domain.Tool              = (*ListTablesTool)(nil)
	_ domain.Tool              = (*TableColumnsTool)(nil)
	_ domain.Tool              = (*ExecuteSQLTool)(nil)
	_ domain.SettingsValidator = (*ListTablesTool)(nil)
	_ domain.SettingsValidator = (*TableColumnsTool)(nil)
	_ domain.SettingsValidator = (*ExecuteSQLTool)(nil)
)
