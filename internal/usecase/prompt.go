package usecase

import (
	"strings"
	"time"
)

// DefaultSystemPrompt is used when a turn supplies no template override.
const DefaultSystemPrompt = `You are a marketing data assistant. You answer questions about campaigns,
spend, and performance using the tools available to you.

Guidelines:
- Inspect the database schema with list_tables and get_table_columns before
  writing SQL. Only run read-only queries via execute_sql_query.
- Use query_knowledge_base for questions about internal documentation and
  reports, and web_search for public or current information.
- Cite concrete numbers from query results; do not invent figures.

User: {user_name}
System time: {system_time}`

// UnknownUserName is substituted when no display name is supplied.
const UnknownUserName = "Unknown User"

// RenderSystemPrompt substitutes the dynamic fields of a prompt template:
// {system_time} becomes the current UTC time in ISO-8601 and {user_name}
// becomes the supplied display name, falling back to UnknownUserName.
func RenderSystemPrompt(template, userName string, now time.Time) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	if userName == "" {
		userName = UnknownUserName
	}
	out := strings.ReplaceAll(template, "{system_time}", now.UTC().Format(time.RFC3339))
	return strings.ReplaceAll(out, "{user_name}", userName)
}
