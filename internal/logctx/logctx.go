// Package logctx enriches slog records with request, session, and metering
// data carried on the context, so call sites log terse event names and the
// handler fills in the rest.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps an inner slog.Handler and injects context-carried groups.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
		))
	}

	if md, ok := ctx.Value(meterDataKey{}).(*MeterData); ok {
		r.AddAttrs(slog.Group("meter",
			slog.String("capability", md.Capability),
			slog.String("kind", md.Kind),
			slog.String("agent_request_id", md.AgentRequestID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one inbound HTTP request.
type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type sessionDataKey struct{}

// SessionData identifies the session a request resolved to.
type SessionData struct {
	SessionID string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}

type meterDataKey struct{}

// MeterData identifies the metered capability invocation in flight.
type MeterData struct {
	Capability     string
	Kind           string
	AgentRequestID string
}

func WithMeterData(ctx context.Context, data *MeterData) context.Context {
	return context.WithValue(ctx, meterDataKey{}, data)
}
