// Package config loads and validates HomeLink Core configuration.
//
// Configuration is read from a YAML file with three layers of precedence:
// hardcoded defaults, file values, and HOMELINK_* environment variables.
// Secrets (broker credentials, InfluxDB token) should be supplied via
// environment variables rather than committed to the config file.
package config
