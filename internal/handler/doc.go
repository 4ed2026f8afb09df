// Package handler implements the HTTP handlers of the proxy: the forwarding
// handler that relays GET requests to the upstream, the health and
// configuration endpoints, and the fallback for unmatched routes.
package handler
