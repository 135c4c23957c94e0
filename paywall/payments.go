package paywall

import (
	"context"
	"errors"
	"fmt"
)

// ErrAuthorizationRequired indicates no bearer credential was supplied.
var ErrAuthorizationRequired = errors.New("authorization required")

// ErrPaymentRequired indicates the caller's credential was rejected or the
// caller has no active subscription.
var ErrPaymentRequired = errors.New("payment required")

// SubscriptionError carries the payments backend's rejection detail,
// optionally including remediation data such as suggested plans. It unwraps
// to ErrPaymentRequired.
type SubscriptionError struct {
	Message string
	Data    any
}

func (e *SubscriptionError) Error() string {
	if e.Message == "" {
		return ErrPaymentRequired.Error()
	}
	return fmt.Sprintf("payment required: %s", e.Message)
}

func (e *SubscriptionError) Unwrap() error { return ErrPaymentRequired }

// Balance summarizes the caller's standing with the payments backend.
type Balance struct {
	IsSubscriber bool   `json:"isSubscriber"`
	Credits      int64  `json:"balance,string"`
	PlanID       string `json:"planId,omitempty"`
}

// RequestAccess is the payments backend's grant for one capability
// invocation. AgentRequestID is the token the redeem step must present.
type RequestAccess struct {
	AgentRequestID string  `json:"agentRequestId"`
	Balance        Balance `json:"balance"`
}

// PaymentsService is the remote identity/billing backend, reduced to the two
// operations the gateway needs. Both operations may block on network I/O and
// must honor ctx.
type PaymentsService interface {
	// StartProcessingRequest validates the caller's credential against the
	// capability identified by logicalURL and verb, on behalf of the
	// capability owner. It fails, or returns a RequestAccess whose balance
	// reports IsSubscriber=false, when the caller may not proceed.
	StartProcessingRequest(ctx context.Context, ownerID, credential, logicalURL, verb string) (*RequestAccess, error)

	// RedeemCredits debits amount credits from the caller's balance for a
	// previously started request. It fails if the request id is stale or the
	// amount is invalid.
	RedeemCredits(ctx context.Context, agentRequestID, credential string, amount int64) error
}
