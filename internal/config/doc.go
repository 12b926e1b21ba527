// Package config loads, normalizes, and validates voicenotes configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VOICENOTES_NOTES_DIR. The Config type centralizes the knobs the daemon and
// CLI need: where notes and imports live, how the transcriber is invoked, how
// the background queue paces itself, and when reconciliation runs.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
