package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/internal/logctx"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

const (
	// Canonical header names; Go matches headers case-insensitively.
	sessionIDHeader       = "Mcp-Session-Id"
	protocolVersionHeader = "Mcp-Protocol-Version"
)

var (
	jsonMediaType        = contenttype.NewMediaType("application/json")
	eventStreamMediaType = contenttype.NewMediaType("text/event-stream")
	postResponseTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
	eventStreamTypes     = []contenttype.MediaType{eventStreamMediaType}
)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAllowedHosts restricts which Host header values are served. An empty
// allow-list admits every host.
func WithAllowedHosts(hosts []string) HandlerOption {
	return func(h *Handler) {
		h.allowedHosts = make(map[string]struct{}, len(hosts))
		for _, host := range hosts {
			host = strings.TrimSpace(strings.ToLower(host))
			if host != "" {
				h.allowedHosts[host] = struct{}{}
			}
		}
	}
}

// WithHandlerLogger sets the handler's logger. The logger is wrapped with
// the logctx handler so records carry request and session data.
func WithHandlerLogger(log *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = log }
}

// Handler implements the session-oriented streaming transport on a single
// endpoint: POST establishes sessions and carries client-to-server
// messages, GET attaches the server-to-client notification stream, DELETE
// terminates a session. Every message passes the Gate before any session
// machinery runs.
type Handler struct {
	mux          *http.ServeMux
	log          *slog.Logger
	gate         *Gate
	sessions     *SessionManager
	allowedHosts map[string]struct{}
}

var _ http.Handler = (*Handler)(nil)

// NewHandler mounts the transport at endpointPath (e.g. "/mcp").
func NewHandler(endpointPath string, gate *Gate, sessions *SessionManager, opts ...HandlerOption) (*Handler, error) {
	if gate == nil || sessions == nil {
		return nil, fmt.Errorf("gate and session manager are required")
	}
	if endpointPath == "" || !strings.HasPrefix(endpointPath, "/") {
		return nil, fmt.Errorf("invalid endpoint path %q", endpointPath)
	}

	h := &Handler{
		gate:     gate,
		sessions: sessions,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", endpointPath), h.handlePost)
	mux.HandleFunc(fmt.Sprintf("GET %s", endpointPath), h.handleGet)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", endpointPath), h.handleDelete)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if len(h.allowedHosts) > 0 {
		host := strings.ToLower(r.Host)
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		if _, ok := h.allowedHosts[host]; !ok {
			h.log.WarnContext(r.Context(), "http.host.rejected", slog.String("host", r.Host))
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

func (h *Handler) writeResponse(w http.ResponseWriter, r *http.Request, resp *jsonrpc.Response) {
	// A request whose Accept includes text/event-stream gets its response
	// as a single SSE frame; everything else gets plain JSON.
	wantsStream := false
	if acc := r.Header.Get("Accept"); acc != "" {
		if mt, _, err := contenttype.GetAcceptableMediaType(r, postResponseTypes); err == nil && mt.Matches(eventStreamMediaType) {
			wantsStream = true
		}
	}

	b, err := json.Marshal(resp)
	if err != nil {
		h.log.ErrorContext(r.Context(), "rpc.response.marshal.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if wantsStream {
		if f, ok := w.(http.Flusher); ok {
			w.Header().Set("Content-Type", eventStreamMediaType.String())
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			writeSSEEvent(w, f, "", b)
			return
		}
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		h.log.ErrorContext(r.Context(), "rpc.response.write.fail", slog.String("err", err.Error()))
	}
}

// handlePost carries session establishment and all client-to-server
// messages.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON body", nil))
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "batch arrays are not supported", nil))
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	reqctx := paywall.NewRequestContext(r.Header, sessionIDHeader)

	// The gate must resolve before any session machinery sees the message.
	if resp := h.gate.Check(ctx, raw, reqctx); resp != nil {
		h.writeResponse(w, r, resp)
		h.log.InfoContext(ctx, "gate.blocked", slog.Duration("dur", time.Since(start)))
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "invalid JSON-RPC message", nil))
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}
	req := msg.AsRequest()

	if reqctx.SessionID == "" {
		// Session establishment is the only message admitted without a
		// session identifier.
		if req == nil || req.Method != string(mcp.InitializeMethod) {
			var id *jsonrpc.RequestID
			if req != nil {
				id = req.ID
			}
			h.writeResponse(w, r, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeSessionNotFound, "no valid session", nil))
			h.log.InfoContext(ctx, "session.establish.invalid")
			return
		}
		h.handleInitialize(w, r, reqctx, req)
		h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	sess, ok := h.sessions.LookupSession(ctx, reqctx.SessionID)
	if !ok {
		var id *jsonrpc.RequestID
		if req != nil {
			id = req.ID
		}
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeSessionNotFound, "no valid session", nil))
		h.log.InfoContext(ctx, "session.lookup.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})

	if req == nil {
		// Client-to-server responses have no meaning in this gateway; there
		// are no server-initiated requests.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if req.Method == string(mcp.InitializeMethod) {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil))
		h.log.WarnContext(ctx, "session.initialize.redundant")
		return
	}
	if pv := r.Header.Get(protocolVersionHeader); pv != "" {
		if spv := sess.ProtocolVersion(); spv != "" && pv != spv {
			h.writeResponse(w, r, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "protocol version mismatch", nil))
			h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", pv))
			return
		}
	}

	resp := sess.Server().HandleRequest(ctx, reqctx, req)
	if resp == nil {
		if spv := sess.ProtocolVersion(); spv != "" {
			w.Header().Set(protocolVersionHeader, spv)
		}
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}
	if spv := sess.ProtocolVersion(); spv != "" {
		w.Header().Set(protocolVersionHeader, spv)
	}
	h.writeResponse(w, r, resp)
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request, reqctx paywall.RequestContext, req *jsonrpc.Request) {
	ctx := r.Context()

	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			h.writeResponse(w, r, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil))
			h.log.InfoContext(ctx, "session.initialize.params.fail", slog.String("err", err.Error()))
			return
		}
	}

	sess, err := h.sessions.CreateSession(ctx)
	if err != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "failed to create session", nil))
		h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})

	initRes := sess.Server().Initialize(ctx, &initReq)
	h.sessions.negotiateProtocolVersion(ctx, sess, initRes.ProtocolVersion)

	resp, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.writeResponse(w, r, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "failed to encode initialize response", nil))
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set(sessionIDHeader, sess.ID())
	if initRes.ProtocolVersion != "" {
		w.Header().Set(protocolVersionHeader, initRes.ProtocolVersion)
	}
	h.writeResponse(w, r, resp)
	h.log.InfoContext(ctx, "session.initialize.ok")
}

// handleGet attaches the server-to-client notification stream of an
// existing session. An existing, known session is required.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.get.start")

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamTypes); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		h.log.WarnContext(ctx, "accept.unsupported")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	// GET carries no message body; there is nothing for the gate to
	// classify. Session resolution is the only admission check.
	reqctx := paywall.NewRequestContext(r.Header, sessionIDHeader)
	if reqctx.SessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	sess, ok := h.sessions.LookupSession(ctx, reqctx.SessionID)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.lookup.miss")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID()})

	if spv := sess.ProtocolVersion(); spv != "" {
		w.Header().Set(protocolVersionHeader, spv)
	}
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.end")
			return
		case <-sess.Done():
			h.log.InfoContext(ctx, "sse.stream.session_closed")
			return
		case msg := <-sess.Messages():
			if err := writeSSEEvent(w, f, "", msg); err != nil {
				h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
		}
	}
}

// handleDelete terminates an existing session. An existing, known session
// is required; removal is idempotent at the store level.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	reqctx := paywall.NewRequestContext(r.Header, sessionIDHeader)
	if reqctx.SessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}

	if !h.sessions.RemoveSession(ctx, reqctx.SessionID) {
		w.WriteHeader(http.StatusNotFound)
		h.log.InfoContext(ctx, "session.delete.miss")
		return
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "session.delete.ok")
}

// writeSSEEvent writes one Server-Sent Event frame and flushes it.
func writeSSEEvent(w http.ResponseWriter, f http.Flusher, msgID string, payload []byte) error {
	if msgID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("failed to write SSE event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	f.Flush()
	return nil
}
