package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

// Standard JSON-RPC 2.0 codes.
const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Gateway codes. These are part of the public contract and must not change.
const (
	// ErrorCodeSessionNotFound is returned for any non-establishment message
	// that does not resolve to a live session.
	ErrorCodeSessionNotFound ErrorCode = -32000
	// ErrorCodeUpstreamFailure maps network/HTTP failures of downstream
	// collaborators (weather provider, credit redemption).
	ErrorCodeUpstreamFailure ErrorCode = -32002
	// ErrorCodePaymentRequired covers both missing/invalid credentials and
	// callers without an active subscription.
	ErrorCodePaymentRequired ErrorCode = -32003
	// ErrorCodeTargetNotFound is returned when the requested entity (e.g. an
	// unknown city) does not exist.
	ErrorCodeTargetNotFound ErrorCode = -32004
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }
