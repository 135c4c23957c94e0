// Package paywall implements the authorize -> invoke -> redeem metering
// protocol wrapped around every capability invocation, together with the
// credit pricing policies and the client for the remote payments backend.
//
// The Meter never masks handler errors, never runs a handler before the
// authorization step has passed, and never withholds a successful handler
// result because credit redemption failed; redemption failures are reported
// to a FailureSink instead.
package paywall
