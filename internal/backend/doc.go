// Package backend implements the outbound half of the proxy: it maps an
// inbound path onto the configured upstream, issues a single GET through a
// shared HTTP client and classifies the outcome as either an upstream
// response or a transport failure. It also tracks in-flight requests,
// reachability and response time for the upstream.
package backend
