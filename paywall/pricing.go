package paywall

import (
	"encoding/json"
	"fmt"
)

// PricingContext is the immutable bundle a dynamic pricing function may
// inspect. It is assembled after the handler has produced its result.
type PricingContext struct {
	// Arguments is the raw argument payload of the invocation.
	Arguments json.RawMessage
	// Result is the handler's successful result.
	Result any
	// Credential is the caller's bearer token.
	Credential string
	// LogicalURL is the authorization resource identifier of the invocation.
	LogicalURL string
	// Capability is the invoked capability's name.
	Capability string
}

// CreditPolicy resolves the credit amount to redeem for one successful
// capability invocation. Resolution happens after the handler result exists
// and before the redeem step. Implementations must be pure: the same
// context always yields the same non-negative amount.
type CreditPolicy interface {
	ResolveCredits(pctx PricingContext) (int64, error)
}

// freeMarker is the optional interface a policy implements to declare the
// capability free of charge, which skips the redeem call entirely.
type freeMarker interface {
	Free() bool
}

// IsFree reports whether the policy marks its capability as free.
func IsFree(p CreditPolicy) bool {
	if fm, ok := p.(freeMarker); ok {
		return fm.Free()
	}
	return false
}

type fixedCredits int64

func (f fixedCredits) ResolveCredits(PricingContext) (int64, error) { return int64(f), nil }

// FixedCredits prices every invocation at a constant non-negative amount.
// A zero amount is valid and still redeemed, for auditability.
func FixedCredits(amount int64) CreditPolicy {
	if amount < 0 {
		amount = 0
	}
	return fixedCredits(amount)
}

type dynamicCredits func(pctx PricingContext) int64

func (d dynamicCredits) ResolveCredits(pctx PricingContext) (int64, error) {
	amount := d(pctx)
	if amount < 0 {
		return 0, fmt.Errorf("pricing function for %s returned negative amount %d", pctx.Capability, amount)
	}
	return amount, nil
}

// DynamicCredits prices an invocation with a deterministic function of the
// pricing context. The function must be pure and side-effect free; a
// negative return is treated as a policy bug and surfaces as an error from
// resolution.
func DynamicCredits(fn func(pctx PricingContext) int64) CreditPolicy {
	return dynamicCredits(fn)
}

type freeOfCharge struct{}

func (freeOfCharge) ResolveCredits(PricingContext) (int64, error) { return 0, nil }
func (freeOfCharge) Free() bool                                   { return true }

// FreeOfCharge marks a capability as explicitly free: no redeem call is
// issued at all, unlike a zero-priced FixedCredits.
func FreeOfCharge() CreditPolicy { return freeOfCharge{} }
