// Package config loads, normalizes, and validates gfimx agent configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CLIENT_NAME, REDIS_HOST/REDIS_PORT, and GFIMX_STORE_DSN. The Config type
// centralizes every knob the agent and CLI need: the state directory, the
// broker and baseline store endpoints, scan pipeline sizing, and the optional
// report/export/metrics integrations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
