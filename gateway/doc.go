// Package gateway is the session-scoped protocol gateway: it classifies and
// gates inbound JSON-RPC messages, manages streaming transport sessions,
// and routes capability invocations through the paywall meter to the
// handlers held in its registry.
//
// Two routing disciplines are offered over the same registry and gate: the
// streaming, session-oriented Handler (POST/GET/DELETE on one endpoint)
// and the stateless one-shot Dispatcher.
package gateway
