package mcp

import "encoding/json"

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// Lifecycle methods.
const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"
)

// Tool methods.
const (
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"
)

// Resource methods.
const (
	ResourcesListMethod          Method = "resources/list"
	ResourcesReadMethod          Method = "resources/read"
	ResourcesTemplatesListMethod Method = "resources/templates/list"
)

// Prompt methods.
const (
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"
)

// LatestProtocolVersion is the most recent protocol revision this gateway
// speaks. Older revisions are accepted as-is during negotiation.
const LatestProtocolVersion = "2025-06-18"

// InitializeRequest is the params payload of the initialize method.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult is the result payload of the initialize method.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// CallToolRequest is the params payload of tools/call.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ReadResourceRequest is the params payload of resources/read.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// GetPromptRequest is the params payload of prompts/get.
type GetPromptRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// ListToolsResult is the result payload of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// ListResourcesResult is the result payload of resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the result payload of resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ListPromptsResult is the result payload of prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// EmptyResult is the result payload of methods that return nothing (ping).
type EmptyResult struct{}
