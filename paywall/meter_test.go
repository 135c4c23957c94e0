package paywall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
)

type fakePayments struct {
	mu sync.Mutex

	subscriber bool
	startErr   error
	redeemErr  error

	startCalls  int
	redeemCalls int

	lastLogicalURL string
	lastVerb       string
	lastAmount     int64
	lastRequestID  string
}

func (f *fakePayments) StartProcessingRequest(ctx context.Context, ownerID, credential, logicalURL, verb string) (*RequestAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	f.lastLogicalURL = logicalURL
	f.lastVerb = verb
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &RequestAccess{
		AgentRequestID: "req-1",
		Balance:        Balance{IsSubscriber: f.subscriber, PlanID: "plan-basic"},
	}, nil
}

func (f *fakePayments) RedeemCredits(ctx context.Context, agentRequestID, credential string, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redeemCalls++
	f.lastRequestID = agentRequestID
	f.lastAmount = amount
	return f.redeemErr
}

type recordingSink struct {
	mu       sync.Mutex
	failures []error
}

func (s *recordingSink) RecordFailure(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func authedContext() RequestContext {
	h := http.Header{}
	h.Set("Authorization", "Bearer tok-123")
	return NewRequestContext(h, "Mcp-Session-Id")
}

func TestMeterMissingCredential(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	handlerRuns := 0
	_, err := meter.Invoke(context.Background(), RequestContext{}, Invocation{
		Kind:   KindTool,
		Name:   "weather.today",
		Policy: FixedCredits(1),
		Handler: func(ctx context.Context) (any, error) {
			handlerRuns++
			return "never", nil
		},
	})

	if !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("expected ErrAuthorizationRequired, got %v", err)
	}
	if handlerRuns != 0 {
		t.Fatalf("handler ran %d times, want 0", handlerRuns)
	}
	if payments.startCalls != 0 || payments.redeemCalls != 0 {
		t.Fatalf("payments touched: start=%d redeem=%d", payments.startCalls, payments.redeemCalls)
	}
}

func TestMeterNotSubscriber(t *testing.T) {
	payments := &fakePayments{subscriber: false}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	handlerRuns := 0
	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:   KindTool,
		Name:   "weather.today",
		Policy: FixedCredits(1),
		Handler: func(ctx context.Context) (any, error) {
			handlerRuns++
			return "never", nil
		},
	})

	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubscriptionError, got %T", err)
	}
	if handlerRuns != 0 {
		t.Fatalf("handler ran %d times, want 0", handlerRuns)
	}
	if payments.redeemCalls != 0 {
		t.Fatalf("redeem called %d times, want 0", payments.redeemCalls)
	}
}

func TestMeterAuthorizeBackendFailure(t *testing.T) {
	payments := &fakePayments{startErr: errors.New("backend down")}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "weather.today",
		Policy:  FixedCredits(1),
		Handler: func(ctx context.Context) (any, error) { return "never", nil },
	})

	if !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("expected ErrPaymentRequired, got %v", err)
	}
	if payments.redeemCalls != 0 {
		t.Fatalf("redeem called %d times, want 0", payments.redeemCalls)
	}
}

func TestMeterHandlerFailureSkipsRedeem(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	handlerErr := errors.New("city exploded")
	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "weather.today",
		Policy:  FixedCredits(1),
		Handler: func(ctx context.Context) (any, error) { return nil, handlerErr },
	})

	if !errors.Is(err, handlerErr) {
		t.Fatalf("handler error was masked: got %v", err)
	}
	if payments.redeemCalls != 0 {
		t.Fatalf("redeem called %d times after handler failure, want 0", payments.redeemCalls)
	}
}

func TestMeterRedeemFailureStillReturnsResult(t *testing.T) {
	payments := &fakePayments{subscriber: true, redeemErr: errors.New("stale request id")}
	sink := &recordingSink{}
	meter := NewMeter(payments, "owner-1", "weather-mcp", WithFailureSink(sink))

	result, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "weather.today",
		Policy:  FixedCredits(3),
		Handler: func(ctx context.Context) (any, error) { return "sunny", nil },
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "sunny" {
		t.Fatalf("result altered: %v", result)
	}
	if len(sink.failures) != 1 {
		t.Fatalf("sink recorded %d failures, want 1", len(sink.failures))
	}
	if payments.redeemCalls != 1 {
		t.Fatalf("redeem called %d times, want 1", payments.redeemCalls)
	}
}

func TestMeterZeroPriceStillRedeems(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "weather.today",
		Policy:  FixedCredits(0),
		Handler: func(ctx context.Context) (any, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payments.redeemCalls != 1 {
		t.Fatalf("redeem called %d times for zero price, want 1", payments.redeemCalls)
	}
	if payments.lastAmount != 0 {
		t.Fatalf("redeemed amount %d, want 0", payments.lastAmount)
	}
}

func TestMeterFreeOfChargeSkipsRedeem(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "ping-like",
		Policy:  FreeOfCharge(),
		Handler: func(ctx context.Context) (any, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payments.redeemCalls != 0 {
		t.Fatalf("redeem called %d times for free capability, want 0", payments.redeemCalls)
	}
	if payments.startCalls != 1 {
		t.Fatalf("authorize called %d times, want 1", payments.startCalls)
	}
}

func TestMeterDynamicPricingRedeemsResolvedAmount(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	policy := DynamicCredits(func(pctx PricingContext) int64 {
		var args struct {
			City string `json:"city"`
		}
		_ = json.Unmarshal(pctx.Arguments, &args)
		return int64(len(args.City))
	})

	args := json.RawMessage(`{"city":"Madrid"}`)
	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:      KindTool,
		Name:      "weather.today",
		Arguments: args,
		Policy:    policy,
		Handler:   func(ctx context.Context) (any, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payments.lastAmount != int64(len("Madrid")) {
		t.Fatalf("redeemed %d, want %d", payments.lastAmount, len("Madrid"))
	}

	// Purity: resolving the same context twice yields the same amount.
	pctx := PricingContext{Arguments: args, Capability: "weather.today"}
	a1, err1 := policy.ResolveCredits(pctx)
	a2, err2 := policy.ResolveCredits(pctx)
	if err1 != nil || err2 != nil || a1 != a2 {
		t.Fatalf("pricing not pure: %d/%v vs %d/%v", a1, err1, a2, err2)
	}
}

func TestMeterNegativeDynamicPriceGoesToSink(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	sink := &recordingSink{}
	meter := NewMeter(payments, "owner-1", "weather-mcp", WithFailureSink(sink))

	result, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindTool,
		Name:    "weather.today",
		Policy:  DynamicCredits(func(PricingContext) int64 { return -5 }),
		Handler: func(ctx context.Context) (any, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("result altered: %v", result)
	}
	if payments.redeemCalls != 0 {
		t.Fatalf("redeem called %d times for broken policy, want 0", payments.redeemCalls)
	}
	if len(sink.failures) != 1 {
		t.Fatalf("sink recorded %d failures, want 1", len(sink.failures))
	}
}

func TestMeterLogicalURLAndVerb(t *testing.T) {
	payments := &fakePayments{subscriber: true}
	meter := NewMeter(payments, "owner-1", "weather-mcp")

	q := url.Values{}
	q.Set("city", "Madrid")
	_, err := meter.Invoke(context.Background(), authedContext(), Invocation{
		Kind:    KindResource,
		Name:    "weather-today",
		Query:   q,
		Policy:  FixedCredits(1),
		Handler: func(ctx context.Context) (any, error) { return "ok", nil },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "mcp://weather-mcp/resources/weather-today?city=Madrid"
	if payments.lastLogicalURL != want {
		t.Fatalf("logical URL %q, want %q", payments.lastLogicalURL, want)
	}
	if payments.lastVerb != "read" {
		t.Fatalf("verb %q, want read", payments.lastVerb)
	}
}
