// Package config loads the transcriber's YAML configuration, applies defaults
// and environment overrides, and validates every section.
package config
