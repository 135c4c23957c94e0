package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithInstructions sets the human-readable instructions returned during
// initialize.
func WithInstructions(instructions string) ServerOption {
	return func(s *Server) { s.instructions = instructions }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// Server is the capability surface bound to a session (or shared by the
// stateless dispatcher). It resolves classified requests against the
// registry and routes every capability invocation through the meter.
type Server struct {
	registry     *Registry
	meter        *paywall.Meter
	info         mcp.ImplementationInfo
	instructions string
	log          *slog.Logger
}

// NewServer builds a capability surface over a registry and meter.
func NewServer(registry *Registry, meter *paywall.Meter, info mcp.ImplementationInfo, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		meter:    meter,
		info:     info,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize negotiates the protocol version and advertises capabilities.
func (s *Server) Initialize(ctx context.Context, req *mcp.InitializeRequest) *mcp.InitializeResult {
	version := req.ProtocolVersion
	if version == "" {
		version = mcp.LatestProtocolVersion
	}

	caps := mcp.ServerCapabilities{}
	if len(s.registry.Tools()) > 0 {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if len(s.registry.ResourceTemplates()) > 0 {
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}
	if len(s.registry.Prompts()) > 0 {
		caps.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}

	return &mcp.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}
}

// HandleRequest serves one classified, gate-approved request. It always
// returns a response for requests carrying an id and nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	if req.IsNotification() {
		// The only notification with server-side meaning is
		// notifications/initialized, and it requires no action.
		return nil
	}

	switch req.Method {
	case string(mcp.PingMethod):
		return mustResult(req.ID, &mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		return mustResult(req.ID, &mcp.ListToolsResult{Tools: s.registry.Tools()})
	case string(mcp.ResourcesListMethod):
		// All resources are template-derived; the concrete list is empty.
		return mustResult(req.ID, &mcp.ListResourcesResult{Resources: []mcp.Resource{}})
	case string(mcp.ResourcesTemplatesListMethod):
		return mustResult(req.ID, &mcp.ListResourceTemplatesResult{ResourceTemplates: s.registry.ResourceTemplates()})
	case string(mcp.PromptsListMethod):
		return mustResult(req.ID, &mcp.ListPromptsResult{Prompts: s.registry.Prompts()})
	case string(mcp.ToolsCallMethod):
		return s.handleToolCall(ctx, reqctx, req)
	case string(mcp.ResourcesReadMethod):
		return s.handleResourceRead(ctx, reqctx, req)
	case string(mcp.PromptsGetMethod):
		return s.handlePromptGet(ctx, reqctx, req)
	}

	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
}

func (s *Server) handleToolCall(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	reg, ok := s.registry.Tool(params.Name)
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("tool not found: %s", params.Name), nil)
	}

	result, err := s.meter.Invoke(ctx, reqctx, paywall.Invocation{
		Kind:      paywall.KindTool,
		Name:      params.Name,
		Arguments: params.Arguments,
		Query:     queryFromJSON(params.Arguments),
		Policy:    reg.Policy,
		Handler: func(ctx context.Context) (any, error) {
			return reg.Handler(ctx, reqctx, params.Arguments)
		},
	})
	if err != nil {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: wireError(err), ID: req.ID}
	}
	return mustResult(req.ID, result)
}

func (s *Server) handleResourceRead(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.ReadResourceRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	reg, vars, ok := s.registry.MatchResource(params.URI)
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeTargetNotFound, fmt.Sprintf("resource not found: %s", params.URI), map[string]string{"uri": params.URI})
	}

	query := url.Values{}
	for k, v := range vars {
		query.Set(k, v)
	}
	rawArgs, _ := json.Marshal(vars)

	result, err := s.meter.Invoke(ctx, reqctx, paywall.Invocation{
		Kind:      paywall.KindResource,
		Name:      reg.Descriptor.Name,
		Arguments: rawArgs,
		Query:     query,
		Policy:    reg.Policy,
		Handler: func(ctx context.Context) (any, error) {
			return reg.Handler(ctx, reqctx, params.URI, vars)
		},
	})
	if err != nil {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: wireError(err), ID: req.ID}
	}
	return mustResult(req.ID, result)
}

func (s *Server) handlePromptGet(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.GetPromptRequest
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	reg, ok := s.registry.Prompt(params.Name)
	if !ok {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("prompt not found: %s", params.Name), nil)
	}

	query := url.Values{}
	for k, v := range params.Arguments {
		query.Set(k, v)
	}
	rawArgs, _ := json.Marshal(params.Arguments)

	result, err := s.meter.Invoke(ctx, reqctx, paywall.Invocation{
		Kind:      paywall.KindPrompt,
		Name:      params.Name,
		Arguments: rawArgs,
		Query:     query,
		Policy:    reg.Policy,
		Handler: func(ctx context.Context) (any, error) {
			return reg.Handler(ctx, reqctx, params.Arguments)
		},
	})
	if err != nil {
		return &jsonrpc.Response{JSONRPCVersion: jsonrpc.ProtocolVersion, Error: wireError(err), ID: req.ID}
	}
	return mustResult(req.ID, result)
}

// queryFromJSON flattens the top-level scalar fields of a JSON object into
// query values for the logical URL. Nested structures are skipped; the full
// raw payload still reaches pricing via Invocation.Arguments.
func queryFromJSON(raw json.RawMessage) url.Values {
	q := url.Values{}
	if len(raw) == 0 {
		return q
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return q
	}
	for k, v := range obj {
		switch v.(type) {
		case string, float64, bool:
			q.Set(k, fmt.Sprintf("%v", v))
		}
	}
	return q
}

// mustResult wraps result marshalling; descriptor types in this module
// always marshal.
func mustResult(id *jsonrpc.RequestID, result any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to encode result", nil)
	}
	return resp
}
