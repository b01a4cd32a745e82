// Package config loads the slotpool configuration from defaults, an
// optional YAML file, and environment variables, in increasing
// precedence. HOST and PORT are honored bare for compatibility with
// the existing host provisioning; everything else is prefixed
// SLOTPOOL_.
package config
