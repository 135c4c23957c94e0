package paywall

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestContext is the immutable per-request identity bundle threaded
// explicitly through the gate, the router, and the meter. It is constructed
// once from the transport request and never persisted.
type RequestContext struct {
	// Credential is the bearer token extracted from the Authorization
	// header, or empty when none was supplied.
	Credential string
	// SessionID is the session identifier header value, if any.
	SessionID string
	// Header is the full transport header set, for handlers that need
	// additional metadata.
	Header http.Header
}

// NewRequestContext extracts the request context from transport headers.
// The session header name is the transport's concern and passed in.
func NewRequestContext(h http.Header, sessionHeader string) RequestContext {
	return RequestContext{
		Credential: BearerToken(h),
		SessionID:  h.Get(sessionHeader),
		Header:     h,
	}
}

// BearerToken pulls the bearer credential out of an Authorization header.
// Header name matching is case-insensitive and only the first value is
// considered. Returns "" when the header is absent or not a Bearer scheme.
func BearerToken(h http.Header) string {
	v := h.Get("Authorization")
	if v == "" {
		return ""
	}
	const prefix = "bearer "
	if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

// CapabilityKind classifies a registered capability.
type CapabilityKind string

const (
	KindTool     CapabilityKind = "tool"
	KindResource CapabilityKind = "resource"
	KindPrompt   CapabilityKind = "prompt"
)

// Verb returns the HTTP-like verb implied by invoking a capability of this
// kind: resources are read, tools and prompts are invoked.
func (k CapabilityKind) Verb() string {
	if k == KindResource {
		return "read"
	}
	return "invoke"
}

// LogicalURL synthesizes the authorization-check resource identifier for a
// capability invocation. It is never dereferenced; it only names the thing
// being authorized: mcp://<server>/<kind>s/<name>?<argument query>.
func LogicalURL(serverName string, kind CapabilityKind, name string, args url.Values) string {
	u := url.URL{
		Scheme: "mcp",
		Host:   serverName,
		Path:   "/" + string(kind) + "s/" + name,
	}
	if len(args) > 0 {
		u.RawQuery = args.Encode()
	}
	return u.String()
}
