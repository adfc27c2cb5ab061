// Package config loads the wslink daemon configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing.
// LoadAndValidate applies defaults and validates the result.
package config
