package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"smart-query/internal/domain"
)

// Registry holds the tools exposed to the model during a turn.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. With a non-nil logger every
// registered tool is wrapped with JSON Schema argument validation; a schema
// that fails to compile leaves the tool unwrapped and logs a warning.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{tools: make(map[string]domain.Tool), logger: logger}
}

// Register adds a tool under its name. Names are unique.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.tools[name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("tool.registry", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools, ordered by name.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// Schemas returns the function-calling schemas of every registered tool,
// ordered by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0)
	for _, t := range r.List() {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

var _ domain.ToolExecutor = (*Registry)(nil)
