package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerInjectsContextGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r-1", Method: "POST", Path: "/mcp"})
	ctx = WithSessionData(ctx, &SessionData{SessionID: "s-1"})
	ctx = WithMeterData(ctx, &MeterData{Capability: "weather.today", Kind: "tool", AgentRequestID: "a-1"})

	log.InfoContext(ctx, "meter.invoke.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}

	req, _ := rec["req"].(map[string]any)
	if req["id"] != "r-1" || req["path"] != "/mcp" {
		t.Fatalf("req group %+v", rec["req"])
	}
	sess, _ := rec["sess"].(map[string]any)
	if sess["id"] != "s-1" {
		t.Fatalf("sess group %+v", rec["sess"])
	}
	meter, _ := rec["meter"].(map[string]any)
	if meter["capability"] != "weather.today" || meter["agent_request_id"] != "a-1" {
		t.Fatalf("meter group %+v", rec["meter"])
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	log.InfoContext(context.Background(), "session.create.ok")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	for _, group := range []string{"req", "sess", "meter"} {
		if _, ok := rec[group]; ok {
			t.Fatalf("group %q injected without context data", group)
		}
	}
}
