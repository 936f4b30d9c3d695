// Package config loads the bridge configuration from JSON or YAML files.
package config
