// Package config loads the proxy configuration from a YAML file. Omitted
// fields take fixed defaults and unknown fields are rejected so that typos
// fail at startup instead of being silently ignored.
package config
