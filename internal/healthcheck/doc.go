// Package healthcheck probes the upstream periodically and records whether it
// is reachable. Probing is advisory: the proxy keeps forwarding requests
// whatever the probe reports.
package healthcheck
