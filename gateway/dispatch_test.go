package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nevermined-io/weather-mcp-demo/internal/jsonrpc"
	"github.com/nevermined-io/weather-mcp-demo/mcp"
	"github.com/nevermined-io/weather-mcp-demo/paywall"
)

func newTestDispatcher(payments paywall.PaymentsService) *Dispatcher {
	registry := NewRegistry()
	meter := paywall.NewMeter(payments, "owner-1", "weather-mcp")
	srv := NewServer(registry, meter, mcp.ImplementationInfo{Name: "weather-mcp", Version: "test"})
	return NewDispatcher(NewGate(payments, "owner-1", "weather-mcp"), srv)
}

func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDispatcher(&stubPayments{subscriber: true})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"no/such/method"}`), authHeader("tok-1"))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error envelope")
	}
	if resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("code %d, want %d", resp.Error.Code, jsonrpc.ErrorCodeMethodNotFound)
	}
}

func TestDispatchHasNoSessionEstablishment(t *testing.T) {
	d := newTestDispatcher(&stubPayments{subscriber: true})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`), authHeader("tok-1"))
	if resp == nil || resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("initialize should be absent from the stateless map, got %+v", resp)
	}
}

func TestDispatchGatedMethodRequiresCredential(t *testing.T) {
	payments := &stubPayments{subscriber: true}
	d := newTestDispatcher(payments)

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`), http.Header{})
	if resp == nil || resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodePaymentRequired {
		t.Fatalf("got %+v, want code %d", resp, jsonrpc.ErrorCodePaymentRequired)
	}
	if payments.startCalls != 0 {
		t.Fatalf("payments touched %d times without a credential", payments.startCalls)
	}
}

func TestDispatchParseError(t *testing.T) {
	d := newTestDispatcher(&stubPayments{subscriber: true})

	resp := d.Dispatch(context.Background(), []byte(`{not json`), authHeader("tok-1"))
	if resp == nil || resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeParseError {
		t.Fatalf("got %+v, want code %d", resp, jsonrpc.ErrorCodeParseError)
	}
}

func TestDispatchPing(t *testing.T) {
	d := newTestDispatcher(&stubPayments{subscriber: true})

	resp := d.Dispatch(context.Background(), []byte(`{"jsonrpc":"2.0","id":42,"method":"ping"}`), http.Header{})
	if resp == nil || resp.Error != nil {
		t.Fatalf("ping failed: %+v", resp)
	}
	var result map[string]any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("ping result not an object: %v", err)
	}
}
