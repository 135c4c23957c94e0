package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

func TestWireError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code jsonrpc.ErrorCode
	}{
		{"domain error keeps its code", NewDomainError(jsonrpc.ErrorCodeTargetNotFound, "city not found", nil), jsonrpc.ErrorCodeTargetNotFound},
		{"wrapped domain error", fmt.Errorf("handler: %w", NewDomainError(jsonrpc.ErrorCodeUpstreamFailure, "provider down", nil)), jsonrpc.ErrorCodeUpstreamFailure},
		{"subscription error", &paywall.SubscriptionError{Message: "expired"}, jsonrpc.ErrorCodePaymentRequired},
		{"missing credential", paywall.ErrAuthorizationRequired, jsonrpc.ErrorCodePaymentRequired},
		{"payment required", paywall.ErrPaymentRequired, jsonrpc.ErrorCodePaymentRequired},
		{"anything else", errors.New("boom"), jsonrpc.ErrorCodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			we := wireError(tc.err)
			if we.Code != tc.code {
				t.Fatalf("code %d, want %d", we.Code, tc.code)
			}
		})
	}
}

func TestWireErrorNeverLeaksInternals(t *testing.T) {
	we := wireError(errors.New("pq: connection refused on 10.0.0.3"))
	if we.Message != "internal error" {
		t.Fatalf("internal failure leaked: %q", we.Message)
	}
}

func TestWireErrorCarriesSubscriptionData(t *testing.T) {
	we := wireError(&paywall.SubscriptionError{Message: "no plan", Data: map[string]string{"planId": "plan-basic"}})
	data, ok := we.Data.(map[string]string)
	if !ok || data["planId"] != "plan-basic" {
		t.Fatalf("data %+v", we.Data)
	}
}
