package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestAnyMessageClassification(t *testing.T) {
	cases := []struct {
		name string
		body string
		typ  string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"result response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.body), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := msg.Type(); got != tc.typ {
				t.Fatalf("Type() = %q, want %q", got, tc.typ)
			}
		})
	}
}

func TestAnyMessageRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"request with result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
		{"response with both", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`},
		{"response with neither", `{"jsonrpc":"2.0","id":1}`},
		{"object id", `{"jsonrpc":"2.0","id":{"x":1},"method":"ping"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg AnyMessage
			if err := json.Unmarshal([]byte(tc.body), &msg); err == nil {
				t.Fatalf("accepted %s", tc.body)
			}
		})
	}
}

func TestAsRequest(t *testing.T) {
	var msg AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"abc","method":"tools/call","params":{"name":"t"}}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	req := msg.AsRequest()
	if req == nil {
		t.Fatal("AsRequest returned nil for a request")
	}
	if req.Method != "tools/call" || req.ID.String() != "abc" {
		t.Fatalf("request %+v", req)
	}
	if req.IsNotification() {
		t.Fatal("request with id reported as notification")
	}
	if msg.AsResponse() != nil {
		t.Fatal("AsResponse returned non-nil for a request")
	}
}

func TestNotificationHasNoID(t *testing.T) {
	var msg AnyMessage
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req := msg.AsRequest()
	if req == nil || !req.IsNotification() {
		t.Fatalf("notification not recognized: %+v", req)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"integer", `7`},
		{"float", `1.5`},
		{"string", `"abc"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var id RequestID
			if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			out, err := json.Marshal(&id)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tc.raw {
				t.Fatalf("round trip %s -> %s", tc.raw, out)
			}
		})
	}
}

func TestNilRequestIDMarshalsAsNull(t *testing.T) {
	var id *RequestID
	out, err := json.Marshal(id)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "null" {
		t.Fatalf("got %s, want null", out)
	}
	if !id.IsNil() {
		t.Fatal("nil id not reported nil")
	}
}

func TestNewResultResponse(t *testing.T) {
	resp, err := NewResultResponse(NewRequestID(1), map[string]string{"ok": "yes"})
	if err != nil {
		t.Fatalf("NewResultResponse: %v", err)
	}
	if resp.JSONRPCVersion != ProtocolVersion || resp.Error != nil {
		t.Fatalf("response %+v", resp)
	}
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round AnyMessage
	if err := json.Unmarshal(b, &round); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if round.Type() != "response" {
		t.Fatalf("round trip type %q", round.Type())
	}
}
