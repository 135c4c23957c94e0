package paywall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nevermined-io/weather-mcp-demo/internal/logctx"
)

// Invocation describes one capability call to be metered.
type Invocation struct {
	Kind CapabilityKind
	Name string
	// Arguments is the raw argument payload, passed to dynamic pricing.
	Arguments json.RawMessage
	// Query is the argument-derived query string of the logical URL.
	Query url.Values
	// Policy prices the invocation.
	Policy CreditPolicy
	// Handler is the raw capability handler. It runs only after
	// authorization has passed.
	Handler func(ctx context.Context) (any, error)
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithLogger sets the meter's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) MeterOption {
	return func(m *Meter) { m.log = log }
}

// WithFailureSink sets the sink receiving redeem-step failures. Defaults to
// a LogSink over the meter's logger.
func WithFailureSink(sink FailureSink) MeterOption {
	return func(m *Meter) { m.sink = sink }
}

// Meter wraps raw capability handlers with the authorize -> invoke ->
// redeem protocol. A single Meter serves concurrent invocations; it holds
// no per-invocation state.
type Meter struct {
	payments   PaymentsService
	ownerID    string
	serverName string
	sink       FailureSink
	log        *slog.Logger
}

// NewMeter builds a Meter charging on behalf of the capability owner
// identified by ownerID. serverName names this gateway in logical URLs.
func NewMeter(payments PaymentsService, ownerID, serverName string, opts ...MeterOption) *Meter {
	m := &Meter{
		payments:   payments,
		ownerID:    ownerID,
		serverName: serverName,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sink == nil {
		m.sink = LogSink{Log: m.log}
	}
	return m
}

// Invoke runs one metered capability invocation. The protocol steps are
// strictly ordered:
//
//  1. extract the caller's credential (absent -> ErrAuthorizationRequired,
//     the handler never runs)
//  2. authorize against the payments backend (failure or a non-subscriber
//     balance -> ErrPaymentRequired, the handler never runs)
//  3. invoke the raw handler (its errors propagate unchanged; no credits
//     are redeemed for a failed handler)
//  4. resolve the credit amount from the pricing policy
//  5. redeem credits (failures go to the FailureSink, never to the caller)
//  6. return the handler's result unchanged
func (m *Meter) Invoke(ctx context.Context, reqctx RequestContext, inv Invocation) (any, error) {
	ctx = logctx.WithMeterData(ctx, &logctx.MeterData{Capability: inv.Name, Kind: string(inv.Kind)})

	cred := reqctx.Credential
	if cred == "" {
		m.log.InfoContext(ctx, "meter.credential.missing")
		return nil, ErrAuthorizationRequired
	}

	logicalURL := LogicalURL(m.serverName, inv.Kind, inv.Name, inv.Query)

	access, err := m.payments.StartProcessingRequest(ctx, m.ownerID, cred, logicalURL, inv.Kind.Verb())
	if err != nil {
		m.log.InfoContext(ctx, "meter.authorize.fail", slog.String("err", err.Error()))
		var subErr *SubscriptionError
		if errors.As(err, &subErr) {
			return nil, subErr
		}
		return nil, &SubscriptionError{Message: err.Error()}
	}
	if !access.Balance.IsSubscriber {
		m.log.InfoContext(ctx, "meter.authorize.not_subscriber")
		return nil, &SubscriptionError{
			Message: "no active subscription for this capability",
			Data:    map[string]string{"planId": access.Balance.PlanID},
		}
	}

	ctx = logctx.WithMeterData(ctx, &logctx.MeterData{
		Capability:     inv.Name,
		Kind:           string(inv.Kind),
		AgentRequestID: access.AgentRequestID,
	})
	m.log.InfoContext(ctx, "meter.authorize.ok")

	result, err := inv.Handler(ctx)
	if err != nil {
		// Handler failures propagate as-is; nothing is redeemed.
		return nil, err
	}

	if IsFree(inv.Policy) {
		m.log.InfoContext(ctx, "meter.invoke.ok", slog.String("pricing", "free"))
		return result, nil
	}

	amount, err := inv.Policy.ResolveCredits(PricingContext{
		Arguments:  inv.Arguments,
		Result:     result,
		Credential: cred,
		LogicalURL: logicalURL,
		Capability: inv.Name,
	})
	if err != nil {
		// A broken pricing policy must not charge the caller or void the
		// already-produced result.
		m.sink.RecordFailure(ctx, fmt.Errorf("resolve credits for %s: %w", inv.Name, err))
		return result, nil
	}

	if err := m.payments.RedeemCredits(ctx, access.AgentRequestID, cred, amount); err != nil {
		m.sink.RecordFailure(ctx, fmt.Errorf("redeem %d credits for %s: %w", amount, inv.Name, err))
		return result, nil
	}

	m.log.InfoContext(ctx, "meter.invoke.ok", slog.Int64("credits", amount))
	return result, nil
}
