// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including server settings, backend endpoints with capacities, balancer
// thresholds, and the health check interval.
package config
