// Package config loads and validates runtime configuration for the hnmp
// command.
//
// Configuration is read from an optional YAML file and can be overridden
// via HNMP_ environment variables, e.g. HNMP_SERVER_PORT for server.port.
package config
