// Package mcp defines the wire-level types of the Model Context Protocol
// surface spoken by this gateway: method identifiers, capability
// advertisement, tool/resource/prompt descriptors, and the closed set of
// content variants carried in results.
package mcp
