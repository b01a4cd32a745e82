// Package metrics exposes slotpool's Prometheus collectors. All
// collectors are registered at init and served through Handler on the
// webhook server's /metrics path.
package metrics
