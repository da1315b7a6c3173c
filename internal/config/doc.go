// Package config loads, normalizes, and validates kitsupub configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// KITSU_HOST. The Config type centralizes every knob the CLI and the sidecar
// need, so staging directories, the settings file and tracker defaults are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
