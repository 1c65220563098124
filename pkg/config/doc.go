// Package config defines the spend monitor configuration: YAML loading,
// defaults, SPENDWATCH_* environment overrides, validation, and hot reload
// of the file on change.
package config
