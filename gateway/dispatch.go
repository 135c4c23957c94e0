package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

// DispatchFunc handles one method of the stateless request discipline.
type DispatchFunc func(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response

// Dispatcher is the stateless one-shot routing discipline: a flat method
// name to handler map over the same registry, gate, and meter as the
// session-oriented handler, for callers that need no streaming session.
type Dispatcher struct {
	gate     *Gate
	handlers map[string]DispatchFunc
	log      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher's logger.
func WithDispatcherLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher builds the flat dispatch map from a server surface. The
// session-establishment method is deliberately absent: there is no session
// concept in this discipline.
func NewDispatcher(gate *Gate, srv *Server, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		gate: gate,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	route := func(ctx context.Context, reqctx paywall.RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
		return srv.HandleRequest(ctx, reqctx, req)
	}
	d.handlers = map[string]DispatchFunc{
		string(mcp.PingMethod):                   route,
		string(mcp.ToolsListMethod):              route,
		string(mcp.ToolsCallMethod):              route,
		string(mcp.ResourcesListMethod):          route,
		string(mcp.ResourcesReadMethod):          route,
		string(mcp.ResourcesTemplatesListMethod): route,
		string(mcp.PromptsListMethod):            route,
		string(mcp.PromptsGetMethod):             route,
	}
	return d
}

// Dispatch gates and routes one raw message body.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, header http.Header) *jsonrpc.Response {
	reqctx := paywall.NewRequestContext(header, sessionIDHeader)

	if resp := d.gate.Check(ctx, body, reqctx); resp != nil {
		return resp
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON-RPC message", nil)
	}
	req := msg.AsRequest()
	if req == nil {
		return jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "expected a request message", nil)
	}

	fn, ok := d.handlers[req.Method]
	if !ok {
		d.log.InfoContext(ctx, "dispatch.method.miss", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil)
	}
	return fn(ctx, reqctx, req)
}

// ServeHTTP exposes the dispatcher as a plain request/response JSON
// endpoint (POST only, application/json in and out).
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON body", nil))
		return
	}

	resp := d.Dispatch(r.Context(), body, r.Header)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.log.ErrorContext(r.Context(), "dispatch.write.fail", slog.String("err", err.Error()))
	}
}
