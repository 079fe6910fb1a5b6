// Package config loads, normalizes, and validates courtside configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the COURTSIDE_CONFIG environment
// fallback. The Config type centralizes every knob the daemon and CLI need:
// worker pool sizing and timeouts, stream timing tuning, correlation windows,
// and observability settings.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. The
// tuning subset (drift correction and correlation parameters) can be hot
// reloaded at runtime via Watch.
package config
