package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

// gatedMethods is the closed set of discovery/establishment methods that
// require a lightweight authorization check but no handler dispatch and no
// credit cost. They gate information about capabilities, not execution.
var gatedMethods = map[string]struct{}{
	string(mcp.InitializeMethod):    {},
	string(mcp.ToolsListMethod):     {},
	string(mcp.ResourcesListMethod): {},
	string(mcp.PromptsListMethod):   {},
}

// IsGatedMethod reports whether method belongs to the gated set.
func IsGatedMethod(method string) bool {
	_, ok := gatedMethods[method]
	return ok
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the gate's logger.
func WithGateLogger(log *slog.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// Gate classifies inbound messages and short-circuits unauthorized access
// to gated methods before any session or routing machinery runs, so that
// discovery never leaks capability metadata to unauthenticated callers.
type Gate struct {
	payments   paywall.PaymentsService
	ownerID    string
	serverName string
	log        *slog.Logger
}

// NewGate builds a Gate backed by the payments service.
func NewGate(payments paywall.PaymentsService, ownerID, serverName string, opts ...GateOption) *Gate {
	g := &Gate{
		payments:   payments,
		ownerID:    ownerID,
		serverName: serverName,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check inspects one raw inbound message body. A nil response means the
// message may proceed to routing: either it is not gated, or its caller
// passed the authorization check. A non-nil response is the error envelope
// to return to the caller; the router must not run.
//
// Messages that are not well-formed enough to classify (no object shape,
// no string method) pass through unchanged and fail later in normal
// routing with a standard protocol error.
func (g *Gate) Check(ctx context.Context, body []byte, reqctx paywall.RequestContext) *jsonrpc.Response {
	var probe struct {
		Method string             `json:"method"`
		ID     *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Method == "" {
		return nil
	}
	if !IsGatedMethod(probe.Method) {
		return nil
	}

	if reqctx.Credential == "" {
		g.log.InfoContext(ctx, "gate.credential.missing", slog.String("method", probe.Method))
		return jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodePaymentRequired, "Authorization required", nil)
	}

	logicalURL := (&url.URL{Scheme: "mcp", Host: g.serverName, Path: "/" + probe.Method}).String()
	access, err := g.payments.StartProcessingRequest(ctx, g.ownerID, reqctx.Credential, logicalURL, "read")
	if err != nil {
		g.log.InfoContext(ctx, "gate.authorize.fail", slog.String("method", probe.Method), slog.String("err", err.Error()))
		var subErr *paywall.SubscriptionError
		if errors.As(err, &subErr) {
			return jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodePaymentRequired, subErr.Error(), subErr.Data)
		}
		return jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodePaymentRequired, "Payment required", nil)
	}
	if !access.Balance.IsSubscriber {
		g.log.InfoContext(ctx, "gate.authorize.not_subscriber", slog.String("method", probe.Method))
		data := map[string]string{}
		if access.Balance.PlanID != "" {
			data["planId"] = access.Balance.PlanID
		}
		return jsonrpc.NewErrorResponse(probe.ID, jsonrpc.ErrorCodePaymentRequired, "Payment required: no active subscription", data)
	}

	g.log.InfoContext(ctx, "gate.authorize.ok", slog.String("method", probe.Method))
	return nil
}
