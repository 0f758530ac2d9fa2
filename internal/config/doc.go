// Package config loads and validates the YAML service configuration.
//
// Values in the form ${VAR_NAME} are expanded from the environment
// before parsing, and duration fields are given as Go duration strings
// ("30s", "12h").
package config
