package ports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CapabilityClass groups tools by the kind of side effect they can have,
// so the supervisor can hold a tool invocation to the autonomy level its
// calling task was cleared at.
type CapabilityClass string

const (
	CapFSRead    CapabilityClass = "fs_read"
	CapFSWrite   CapabilityClass = "fs_write"
	CapShellExec CapabilityClass = "shell_exec"
	CapNetwork   CapabilityClass = "network"
)

// Tool is the capability interface an inline tool directive resolves to:
// a name, a JSON-Schema parameter declaration, a capability class, and an
// Execute call.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Capability() CapabilityClass
	Execute(ctx context.Context, params json.RawMessage) (ToolResult, error)
}

// ToolResult is the output of a Tool.Execute call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolRegistry holds the tools available to a session and validates
// directive arguments against each tool's JSON Schema before dispatch, so a
// malformed [TOOL:...] directive fails with a syntax_invalid classification
// rather than reaching the tool implementation.
type ToolRegistry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register compiles t's schema and adds it to the registry. An invalid
// schema is a programmer error and returns immediately rather than being
// registered half-validated.
func (r *ToolRegistry) Register(t Tool) error {
	compiler := jsonschema.NewCompiler()
	resource := t.Name() + ".schema.json"
	if err := compiler.AddResource(resource, bytes.NewReader(t.Schema())); err != nil {
		return fmt.Errorf("add schema resource for tool %q: %w", t.Name(), err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", t.Name(), err)
	}

	r.tools[t.Name()] = t
	r.schemas[t.Name()] = schema
	return nil
}

// Get returns the tool registered under name, if any.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args (a raw JSON object built from a directive's k=v
// pairs) against the tool's schema.
func (r *ToolRegistry) Validate(name string, args json.RawMessage) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}

	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("validate tool arguments: %w", err)
	}
	return nil
}

// Execute validates args then dispatches to the registered tool.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}
	if err := r.Validate(name, args); err != nil {
		return ToolResult{}, err
	}
	return t.Execute(ctx, args)
}

// Names returns the registered tool names.
func (r *ToolRegistry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
