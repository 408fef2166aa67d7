// Package config loads, validates, and normalizes dlgen configuration from TOML.
package config
