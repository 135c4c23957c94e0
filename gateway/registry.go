package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yosida95/uritemplate/v3"

	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

// ToolHandler executes a tool invocation with its raw argument payload.
type ToolHandler func(ctx context.Context, reqctx paywall.RequestContext, args json.RawMessage) (*mcp.CallToolResult, error)

// ResourceHandler reads a resource. uri is the concrete requested URI and
// vars holds the path variables captured by the registration's template.
type ResourceHandler func(ctx context.Context, reqctx paywall.RequestContext, uri string, vars map[string]string) (*mcp.ReadResourceResult, error)

// PromptHandler renders a prompt template with its named arguments.
type PromptHandler func(ctx context.Context, reqctx paywall.RequestContext, args map[string]string) (*mcp.GetPromptResult, error)

// ToolRegistration pairs a tool descriptor with its handler and pricing.
type ToolRegistration struct {
	Descriptor mcp.Tool
	Policy     paywall.CreditPolicy
	Handler    ToolHandler
}

// ResourceRegistration pairs a resource template with its handler and
// pricing. The template is compiled at registration time.
type ResourceRegistration struct {
	Descriptor mcp.ResourceTemplate
	Policy     paywall.CreditPolicy
	Handler    ResourceHandler

	tpl *uritemplate.Template
}

// PromptRegistration pairs a prompt descriptor with its handler and pricing.
type PromptRegistration struct {
	Descriptor mcp.Prompt
	Policy     paywall.CreditPolicy
	Handler    PromptHandler
}

// Registry holds the capability surface: tools, resource templates, and
// prompts in separate namespaces. Registration is a startup-only operation;
// once serving begins the registry is read-only, which is what makes
// concurrent resolution safe without locks.
type Registry struct {
	tools     map[string]*ToolRegistration
	toolOrder []string

	resources []*ResourceRegistration

	prompts     map[string]*PromptRegistration
	promptOrder []string
}

// NewRegistry builds an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*ToolRegistration),
		prompts: make(map[string]*PromptRegistration),
	}
}

// RegisterTool adds a tool. Registering a duplicate name or a nil handler
// is a programming error and fails.
func (r *Registry) RegisterTool(reg ToolRegistration) error {
	name := reg.Descriptor.Name
	if name == "" || reg.Handler == nil {
		return fmt.Errorf("tool registration requires a name and a handler")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	if reg.Policy == nil {
		reg.Policy = paywall.FreeOfCharge()
	}
	r.tools[name] = &reg
	r.toolOrder = append(r.toolOrder, name)
	return nil
}

// RegisterResource adds a resource template.
func (r *Registry) RegisterResource(reg ResourceRegistration) error {
	if reg.Descriptor.URITemplate == "" || reg.Handler == nil {
		return fmt.Errorf("resource registration requires a uri template and a handler")
	}
	tpl, err := uritemplate.New(reg.Descriptor.URITemplate)
	if err != nil {
		return fmt.Errorf("invalid resource template %q: %w", reg.Descriptor.URITemplate, err)
	}
	if reg.Policy == nil {
		reg.Policy = paywall.FreeOfCharge()
	}
	reg.tpl = tpl
	r.resources = append(r.resources, &reg)
	return nil
}

// RegisterPrompt adds a prompt.
func (r *Registry) RegisterPrompt(reg PromptRegistration) error {
	name := reg.Descriptor.Name
	if name == "" || reg.Handler == nil {
		return fmt.Errorf("prompt registration requires a name and a handler")
	}
	if _, exists := r.prompts[name]; exists {
		return fmt.Errorf("prompt %q already registered", name)
	}
	if reg.Policy == nil {
		reg.Policy = paywall.FreeOfCharge()
	}
	r.prompts[name] = &reg
	r.promptOrder = append(r.promptOrder, name)
	return nil
}

// Tool resolves a tool registration by name.
func (r *Registry) Tool(name string) (*ToolRegistration, bool) {
	reg, ok := r.tools[name]
	return reg, ok
}

// Prompt resolves a prompt registration by name.
func (r *Registry) Prompt(name string) (*PromptRegistration, bool) {
	reg, ok := r.prompts[name]
	return reg, ok
}

// MatchResource resolves a concrete URI against the registered templates in
// registration order and returns the captured path variables.
func (r *Registry) MatchResource(uri string) (*ResourceRegistration, map[string]string, bool) {
	for _, reg := range r.resources {
		match := reg.tpl.Match(uri)
		if match == nil {
			continue
		}
		vars := make(map[string]string, len(match))
		for name, value := range match {
			vars[name] = value.String()
		}
		return reg, vars, true
	}
	return nil, nil, false
}

// Tools lists the registered tool descriptors in registration order.
func (r *Registry) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name].Descriptor)
	}
	return out
}

// ResourceTemplates lists the registered resource template descriptors.
func (r *Registry) ResourceTemplates() []mcp.ResourceTemplate {
	out := make([]mcp.ResourceTemplate, 0, len(r.resources))
	for _, reg := range r.resources {
		out = append(out, reg.Descriptor)
	}
	return out
}

// Prompts lists the registered prompt descriptors in registration order.
func (r *Registry) Prompts() []mcp.Prompt {
	out := make([]mcp.Prompt, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name].Descriptor)
	}
	return out
}
