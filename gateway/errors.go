package gateway

import (
	"errors"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

// DomainError is a handler failure that already knows its wire code.
// Capability handlers return it to control the error envelope the caller
// sees; anything else surfaces as an internal error.
type DomainError struct {
	Code    jsonrpc.ErrorCode
	Message string
	Data    any
}

func (e *DomainError) Error() string { return e.Message }

// NewDomainError builds a DomainError.
func NewDomainError(code jsonrpc.ErrorCode, message string, data any) *DomainError {
	return &DomainError{Code: code, Message: message, Data: data}
}

// wireError maps a failure from the meter or a handler onto the stable
// error code contract.
func wireError(err error) *jsonrpc.Error {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return &jsonrpc.Error{Code: domErr.Code, Message: domErr.Message, Data: domErr.Data}
	}

	var subErr *paywall.SubscriptionError
	if errors.As(err, &subErr) {
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodePaymentRequired, Message: subErr.Error(), Data: subErr.Data}
	}
	if errors.Is(err, paywall.ErrAuthorizationRequired) {
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodePaymentRequired, Message: "Authorization required"}
	}
	if errors.Is(err, paywall.ErrPaymentRequired) {
		return &jsonrpc.Error{Code: jsonrpc.ErrorCodePaymentRequired, Message: "Payment required"}
	}

	return &jsonrpc.Error{Code: jsonrpc.ErrorCodeInternalError, Message: "internal error"}
}
