// Package config provides configuration loading and validation for evaluation runs.
// It reads YAML (or TOML, by file extension) into per-section structs, applies
// defaults, and validates every section before any data is processed.
package config
