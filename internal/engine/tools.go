package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Tool is the contract every agent tool implements. Execute returns the
// tool output as a string; execution tools return JSON matching
// ExecutionResult so the loop can read exit codes.
type Tool interface {
	Name() string
	Description() string
	JSONSchema() string
	Retryable() bool
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// FuncTool adapts a plain function to the Tool interface. Most tools are
// a schema plus a closure; this saves each one a dedicated type.
type FuncTool struct {
	ToolName string
	Desc     string
	Schema   string
	CanRetry bool
	Fn       func(ctx context.Context, args map[string]any) (string, error)
}

func (t *FuncTool) Name() string        { return t.ToolName }
func (t *FuncTool) Description() string { return t.Desc }
func (t *FuncTool) JSONSchema() string  { return t.Schema }
func (t *FuncTool) Retryable() bool     { return t.CanRetry }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.Fn(ctx, args)
}

// ToolRegistry holds the tools available to an agent, keyed by name.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a second tool under the same name is
// a programming error.
func (r *ToolRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// MustRegister registers a tool and panics on conflict. Used during
// startup wiring where a conflict means a bug.
func (r *ToolRegistry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the tool schemas in a stable order, for handing to the
// inference provider.
func (r *ToolRegistry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			JSONSchema:  t.JSONSchema(),
			Retryable:   t.Retryable(),
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateArgs validates tool call arguments against the tool's JSON
// schema before the tool runs. Models produce malformed arguments often
// enough that skipping this turns schema errors into confusing tool
// failures.
func ValidateArgs(t Tool, args map[string]any) error {
	schemaStr := t.JSONSchema()
	if schemaStr == "" {
		return nil
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return &ToolValidationError{
			ToolName: t.Name(),
			Errors:   []string{fmt.Sprintf("arguments not serializable: %v", err)},
		}
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaStr)
	docLoader := gojsonschema.NewBytesLoader(argsJSON)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return &ToolValidationError{
			ToolName: t.Name(),
			Errors:   []string{fmt.Sprintf("schema validation error: %v", err)},
		}
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return &ToolValidationError{ToolName: t.Name(), Errors: msgs}
	}

	return nil
}
